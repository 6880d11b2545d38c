// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package directory announces live sessions in Redis so that any bridge
// instance behind a load balancer can tell which instance owns a session.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/metrics"
)

const keyPrefix = "embedbridge:session:"

var ErrNotFound = errors.New("session not in directory")

// Config holds the Redis connection and announcement settings.
type Config struct {
	Addr     string        // host:port
	Password string        // optional
	DB       int           // database number
	TTL      time.Duration // lifetime of one announcement
	Instance string        // name of this bridge instance
}

// Record is what an instance publishes about one of its sessions.
type Record struct {
	SessionID string    `json:"sessionId"`
	Instance  string    `json:"instance"`
	State     string    `json:"state"`
	Host      string    `json:"host,omitempty"`
	AuthMode  string    `json:"authMode,omitempty"`
	Codec     string    `json:"codec,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Directory is a Redis-backed session directory.
type Directory struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	clock    clock.Clock
	logger   zerolog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Directory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("instance", cfg.Instance).
		Msg("connected to session directory")

	return newDirectory(client, cfg, clock.Real(), logger), nil
}

func newDirectory(client *redis.Client, cfg Config, c clock.Clock, logger zerolog.Logger) *Directory {
	return &Directory{
		client:   client,
		ttl:      cfg.TTL,
		instance: cfg.Instance,
		clock:    c,
		logger:   logger,
	}
}

// Instance returns the name this directory announces sessions under.
func (d *Directory) Instance() string { return d.instance }

// TTL returns the lifetime of one announcement.
func (d *Directory) TTL() time.Duration { return d.ttl }

func key(sessionID string) string { return keyPrefix + sessionID }

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.IncDirectoryOp(op, result)
}

// Announce publishes (or refreshes) a record owned by this instance.
func (d *Directory) Announce(ctx context.Context, rec Record) (err error) {
	defer func() { observe("announce", err) }()

	rec.Instance = d.instance
	rec.UpdatedAt = d.clock.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("directory: encode %s: %w", rec.SessionID, err)
	}
	if err := d.client.Set(ctx, key(rec.SessionID), data, d.ttl).Err(); err != nil {
		return fmt.Errorf("directory: announce %s: %w", rec.SessionID, err)
	}
	return nil
}

// Remove deletes the record of a session if this instance still owns it.
func (d *Directory) Remove(ctx context.Context, sessionID string) (err error) {
	defer func() { observe("remove", err) }()

	k := key(sessionID)
	return d.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := decode(tx.Get(ctx, k))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("directory: remove %s: %w", sessionID, err)
		}
		if rec.Instance != d.instance {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		if err != nil {
			return fmt.Errorf("directory: remove %s: %w", sessionID, err)
		}
		return nil
	}, k)
}

// Lookup returns the record of a session, or ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, sessionID string) (rec Record, err error) {
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			observe("lookup", err)
		}
	}()
	return decode(d.client.Get(ctx, key(sessionID)))
}

// List returns every announced session across all instances.
func (d *Directory) List(ctx context.Context) (out []Record, err error) {
	defer func() { observe("list", err) }()

	iter := d.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rec, err := decode(d.client.Get(ctx, iter.Val()))
		if errors.Is(err, ErrNotFound) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("directory: list: %w", err)
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("directory: scan: %w", err)
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (d *Directory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

func (d *Directory) Close() error {
	return d.client.Close()
}

func decode(cmd *redis.StringCmd) (Record, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("directory: decode: %w", err)
	}
	return rec, nil
}
