package completion

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/analyst/config"
)

// Pipeline stages that can be routed to different models.
const (
	StagePlanning  = "planning"
	StageAgents    = "agents"
	StageCombining = "combining"
)

// Options are the shared pieces wrapped around every stage service.
type Options struct {
	Redis    kv // nil disables caching
	CacheTTL time.Duration
	Limiter  *rate.Limiter
	Logger   *log.Logger
}

// ForStage builds the service configured for stage: the routed OpenAI model,
// behind the limiter, behind the Redis cache when one is given.
func ForStage(cfg config.LLMConfig, stage string, opts Options) (Service, error) {
	route := cfg.Routing.Route(stage)
	provider, model, err := resolveRoute(cfg, route)
	if err != nil {
		return nil, fmt.Errorf("llm route for %s: %w", stage, err)
	}
	var svc Service = NewOpenAI(provider, model, opts.Logger)
	svc = NewLimited(svc, opts.Limiter)
	if opts.Redis != nil {
		svc = NewCache(svc, opts.Redis, route, opts.CacheTTL, opts.Logger)
	}
	return svc, nil
}

// resolveRoute accepts "<provider>/<model>" or a bare model key, which is
// looked up in providers in name order.
func resolveRoute(cfg config.LLMConfig, route string) (config.LLMProvider, config.LLMModel, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("empty route")
	}
	if pname, mname, ok := strings.Cut(route, "/"); ok {
		p, found := cfg.Providers[pname]
		if !found {
			return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("provider %q not configured", pname)
		}
		m, found := p.Models[mname]
		if !found {
			return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("model %q not configured for %s", mname, pname)
		}
		return p, m, nil
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if m, ok := cfg.Providers[name].Models[route]; ok {
			return cfg.Providers[name], m, nil
		}
	}
	return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("model %q not configured", route)
}
