package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Version of the daemon.
const Version = "0.1.0-dev"

// ========================================
// Node handlers
// ========================================

// NodeInfoResult is the response for node_info.
type NodeInfoResult struct {
	Version         string `json:"version"`
	ProgramID       string `json:"program_id"`
	DataDir         string `json:"data_dir"`
	Uptime          string `json:"uptime"`
	FaucetEnabled   bool   `json:"faucet_enabled"`
	FaucetAuthority string `json:"faucet_authority,omitempty"`
}

func (s *Server) nodeInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	result := &NodeInfoResult{
		Version:       Version,
		ProgramID:     s.program.ID().String(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		FaucetEnabled: s.faucet != nil,
	}
	if s.cfg != nil {
		result.DataDir = s.cfg.Storage.DataDir
	}
	if s.faucet != nil {
		result.FaucetAuthority = s.faucet.Authority().String()
	}
	return result, nil
}

// NodeStatusResult is the response for node_status.
type NodeStatusResult struct {
	Running     bool   `json:"running"`
	OpenEscrows int    `json:"open_escrows"`
	Uptime      string `json:"uptime"`
	WSClients   int    `json:"ws_clients"`
}

func (s *Server) nodeStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	open, err := s.program.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}

	return &NodeStatusResult{
		Running:     true,
		OpenEscrows: len(open),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		WSClients:   s.wsHub.ClientCount(),
	}, nil
}

// decodeParams unmarshals params into v, reporting failures as invalid params.
func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: missing params", errInvalidParams)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}
