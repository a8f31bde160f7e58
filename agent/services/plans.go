package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

type planRow struct {
	bun.BaseModel `bun:"table:fishing_plans,alias:fp"`

	SessionID string    `bun:"session_id,pk"`
	PlanID    string    `bun:"plan_id,notnull"`
	Payload   []byte    `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// LoadPlan returns the durable plan record for a session, or a fresh empty
// snapshot when none exists yet.
func (f *Facade) LoadPlan(ctx context.Context, sessionID string) (statex.PlanSnapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return statex.PlanSnapshot{}, fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	}
	if err := f.requireDB(); err != nil {
		return statex.PlanSnapshot{}, fmt.Errorf("%w: plan store: %v", contractx.ErrExternalService, err)
	}

	row := new(planRow)
	err := f.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return statex.PlanSnapshot{}, nil
		}
		return statex.PlanSnapshot{}, fmt.Errorf("%w: select plan: %v", contractx.ErrExternalService, err)
	}

	var plan statex.PlanSnapshot
	if err := json.Unmarshal(row.Payload, &plan); err != nil {
		return statex.PlanSnapshot{}, fmt.Errorf("%w: unmarshal plan: %v", contractx.ErrExternalService, err)
	}
	return plan, nil
}

// SavePlan upserts the durable plan record, assigning a plan id on first
// write.
func (f *Facade) SavePlan(ctx context.Context, sessionID string, plan statex.PlanSnapshot) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	}
	if err := f.requireDB(); err != nil {
		return fmt.Errorf("%w: plan store: %v", contractx.ErrExternalService, err)
	}

	if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}

	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("%w: marshal plan: %v", contractx.ErrExternalService, err)
	}

	row := &planRow{
		SessionID: sessionID,
		PlanID:    plan.PlanID,
		Payload:   payload,
		UpdatedAt: f.now().UTC(),
	}
	_, err = f.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("plan_id = EXCLUDED.plan_id").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert plan: %v", contractx.ErrExternalService, err)
	}
	return nil
}
