package storage

import (
	"context"
	"fmt"

	"paperchat/internal/providers"
)

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) RecordCall(ctx context.Context, rec providers.CallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, corpus_id, paper_id, provider_name, model, request_id, status, error_type)
VALUES (gen_random_uuid(), $1, NULL, NULLIF($2,''), $3, $4, $5, $6, NULLIF($7,''))`,
		rec.Operation, rec.PaperID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

var _ providers.CallRecorder = (*LLMAuditRepo)(nil)
