package provider

import (
	"log"
	"math/rand"
)

// resolvedOptions is the fully-materialized set of generation parameters
// sent to a backend, after defaults, clamping, and seed randomization.
type resolvedOptions struct {
	NumCtx      int
	Seed        int
	Temperature float64
	TopP        float64
	JSONMode    bool
	Thinking    bool
	KeepAlive   int // backends that support it (local daemons) unload promptly
}

// resolveOptions applies the spec's §4.3 "options handling" rules, run
// before every backend call.
func resolveOptions(cfg ModelConfig, opts GenOptions, isLocalDaemon bool) resolvedOptions {
	numCtx := cfg.NumCtx
	if numCtx <= 0 {
		numCtx = defaultNumCtx
	} else if cfg.MaxContextLength > 0 && numCtx > cfg.MaxContextLength {
		log.Printf("[Provider] requested context length %d exceeds backend cap %d; clamping", numCtx, cfg.MaxContextLength)
		numCtx = cfg.MaxContextLength
	}

	seed := cfg.Seed
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	if cfg.RandomizeSeed && !cfg.StaticSeed {
		seed += 1 + rand.Intn(10000)
	}

	jsonMode := opts.Format == "json"

	temperature := defaultTemperature
	if jsonMode {
		temperature = defaultJSONTemperature
	}
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	topP := defaultTopP
	if cfg.TopP != nil {
		topP = *cfg.TopP
	}

	ro := resolvedOptions{
		NumCtx:      numCtx,
		Seed:        seed,
		Temperature: temperature,
		TopP:        topP,
		JSONMode:    jsonMode,
		Thinking:    cfg.ThinkingFamily,
	}
	if isLocalDaemon {
		ro.KeepAlive = 0
	}
	return ro
}
