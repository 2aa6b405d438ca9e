package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stakefarm/config"
	"stakefarm/native/bank"
	"stakefarm/native/farm"
	"stakefarm/storage"
)

var tickOriginKey = []byte("farmd/tick-origin")

type originRecord struct {
	UnixNano uint64
}

// tickOrigin returns the instant tick 0 starts at. Without a configured
// GenesisTime the first start time is persisted so ticks stay monotonic
// across restarts.
func tickOrigin(kv *storage.KV, cfg config.Farm) (time.Time, error) {
	configured, err := cfg.GenesisTimestamp()
	if err != nil {
		return time.Time{}, err
	}
	if !configured.IsZero() {
		return configured, nil
	}
	var rec originRecord
	ok, err := kv.KVGet(tickOriginKey, &rec)
	if err != nil {
		return time.Time{}, fmt.Errorf("load tick origin: %w", err)
	}
	if ok {
		return time.Unix(0, int64(rec.UnixNano)).UTC(), nil
	}
	now := time.Now().UTC()
	if err := kv.KVPut(tickOriginKey, originRecord{UnixNano: uint64(now.UnixNano())}); err != nil {
		return time.Time{}, err
	}
	if err := kv.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("persist tick origin: %w", err)
	}
	return now, nil
}

// applyGenesis seeds pools and balances on a fresh data dir. Balance credits
// are staged on the shared state and committed together with the pools, so a
// rejected genesis leaves nothing behind.
func applyGenesis(engine *farm.Engine, ledger *bank.Ledger, path string, custody [20]byte, logger *slog.Logger) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	applied, err := engine.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		logger.Info("genesis already applied")
		return nil
	}
	doc, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	g, err := doc.FarmGenesis()
	if err != nil {
		return err
	}
	credits, err := doc.Credits(custody)
	if err != nil {
		return err
	}
	for _, c := range credits {
		if err := ledger.Credit(c.Token, c.Address, c.Amount); err != nil {
			return fmt.Errorf("genesis credit: %w", err)
		}
	}
	if err := engine.InitGenesis(g); err != nil {
		return fmt.Errorf("init genesis: %w", err)
	}
	logger.Info("genesis applied", slog.Int("pools", len(g.Pools)), slog.Int("balances", len(credits)))
	return nil
}
