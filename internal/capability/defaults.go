package capability

// Names of the built-in agents.
const (
	PreprocessingAgent = "preprocessing_agent"
	StatisticsAgent    = "statistical_analytics_agent"
	VisualizationAgent = "data_viz_agent"
)

func datasetGoalInputs(datasetDesc, goalDesc string) []Field {
	return []Field{
		{Name: FieldDataset, Description: datasetDesc},
		{Name: FieldGoal, Description: goalDesc},
	}
}

// DefaultSpecs returns the built-in analytics agents.
func DefaultSpecs() []AgentSpec {
	const datasetDesc = "Available datasets loaded in the system, use this df_name,columns set df as copy of df_name"
	return []AgentSpec{
		{
			Name: PreprocessingAgent,
			Purpose: "Data pre-processing agent. Using numpy and pandas, builds an EDA pipeline for the goal: " +
				"cleans the data (missing values, outliers, duplicates), transforms it (scaling, encoding) and " +
				"produces basic analysis (summary statistics, correlations). Outputs commented Python code.",
			InputContract: datasetGoalInputs(datasetDesc, "The user defined goal"),
			OutputContract: []Field{
				{Name: FieldCode, Description: "The code that does the data preprocessing and introductory analysis"},
			},
		},
		{
			Name: StatisticsAgent,
			Purpose: "Statistical analytics agent. Using statsmodels, picks the appropriate statistical method " +
				"(regression, hypothesis testing, ...), prepares the data if needed and writes Python code for model " +
				"fitting and analysis (p-values, confidence intervals) with explanatory comments.",
			InputContract: datasetGoalInputs(datasetDesc, "The user defined goal for the analysis to be performed"),
			OutputContract: []Field{
				{Name: FieldCommentary, Description: "The comments about what analysis is being performed", Optional: true},
				{Name: FieldCode, Description: "The code that does the statistical analysis using statsmodels"},
			},
		},
		{
			Name: VisualizationAgent,
			Purpose: "Data visualization agent. Using plotly, identifies the relevant data and writes Python code " +
				"for the charts the goal asks for (bar charts, scatter plots, ...). If the dataset lacks the needed " +
				"columns it says so instead of inventing them.",
			InputContract: datasetGoalInputs(
				"Information about the data in the data frame. Only use column names and dataframe_name as in this context",
				"User defined goal which includes information about data and chart they want to plot",
			),
			OutputContract: []Field{
				{Name: FieldCommentary, Description: "The comments about what analysis is being performed", Optional: true},
				{Name: FieldCode, Description: "Plotly code that visualizes what the user needs"},
			},
		},
	}
}

// NewDefaultCatalog returns a catalog holding DefaultSpecs.
func NewDefaultCatalog() *Catalog {
	return NewCatalog().MustRegister(DefaultSpecs()...)
}
