// Package ticketbridge provides a multi-source helpdesk ticket ingestion and
// synchronization engine. It exports tickets, message threads, customers,
// organizations, knowledge base articles, and automation rules from hosted
// helpdesk platforms into canonical JSONL datasets, pushes local changes back
// with timestamp-based conflict detection, and clones exported datasets into
// isolated sandboxes with rewritten identities.
//
// # Architecture
//
// Source adapters implement a shared contract and register themselves at init
// time, so a binary selects adapters purely by blank import:
//
//	import (
//	    _ "github.com/discordwell/ticketbridge/pkg/connector/sources/freshdesk"
//	    _ "github.com/discordwell/ticketbridge/pkg/connector/sources/intercom"
//	    _ "github.com/discordwell/ticketbridge/pkg/connector/sources/zendesk"
//	)
//
// Each adapter maps its platform's wire format onto the canonical models and
// declares which record categories it supports. Pagination differences are
// isolated behind a single pull-iterator interface with cursor, offset, and
// scroll implementations.
//
// # Quick Start
//
// Export a workspace to JSONL:
//
//	var cfg config.BaseConfig
//	_ = config.Load("zendesk.yaml", &cfg)
//	source, _ := registry.CreateSource(cfg.Type, &cfg)
//	pipeline := export.NewPipeline(source, "./out", logger.Get())
//	manifest, _ := pipeline.Run(context.Background())
//
// # Key Packages
//
//	pkg/connector  - Adapter contract, registry, and the three source adapters
//	pkg/clients    - HTTP client with retry, auth providers, pagination
//	pkg/models     - Canonical record types and status/priority tables
//	pkg/export     - JSONL export pipeline and dataset loading
//	pkg/syncer     - Outbox, conflict detection, and the sync worker
//	pkg/sandbox    - Dataset cloning with identifier remapping
//	pkg/config     - Unified configuration with ${VAR} substitution
//	pkg/errors     - Structured error handling
//	pkg/logger     - Structured logging
//	pkg/metrics    - Prometheus metrics collection
package ticketbridge
