package api

import (
	"context"
	"sync"

	"tablesync/internal/executor"
	"tablesync/internal/reconcile"
	"tablesync/internal/reference"
)

// resetter — lookup с кешем, который сбрасывается при перезагрузке.
type resetter interface {
	Reset()
}

// Server держит зависимости обработчиков. Применение сериализуется:
// один прогон владеет соединением от начала до commit.
type Server struct {
	applyMu sync.Mutex
	Syncer  *reconcile.Syncer
	Catalog *reference.Catalog
}

func NewServer(s *reconcile.Syncer) *Server {
	return &Server{Syncer: s, Catalog: s.Catalog}
}

func (s *Server) apply(ctx context.Context, req reconcile.Request, execute, commit bool) (*reconcile.Plan, *executor.Report, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.Syncer.Apply(ctx, req, execute, commit)
}
