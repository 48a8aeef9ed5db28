// Package graphstore provides a Neo4j graph database client over the Bolt protocol.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client wraps the Neo4j driver behind read/write transaction helpers that
// return plain row maps, so callers never touch driver types.
type Client struct {
	driver neo4j.DriverWithContext
}

// Config holds graph database connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

// NewClient creates a new graph database client.
func NewClient(cfg Config) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{driver: driver}, nil
}

// Close closes the driver connection.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode: mode,
	})
}

// ExecuteRead runs the query in a read transaction and returns the
// resulting rows as maps keyed by the query's return aliases.
func (c *Client) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]any), nil
}

// ExecuteWrite runs the query in a write transaction and returns the
// resulting rows as maps keyed by the query's return aliases.
func (c *Client) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	rows, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]any), nil
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	rows := []map[string]any{}
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
