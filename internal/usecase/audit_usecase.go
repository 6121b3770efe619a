package usecase

import (
	"context"
	"net/http"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"
)

// 管理者向けの監査ログ閲覧
type AuditUsecase struct {
	auditRepo repo.AuditLogRepository
}

func NewAuditUsecase(auditRepo repo.AuditLogRepository) *AuditUsecase {
	return &AuditUsecase{auditRepo: auditRepo}
}

type ListAuditLogsInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type AuditLogListOutput struct {
	Items  []model.AuditLog `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (u *AuditUsecase) ListAuditLogs(ctx context.Context, in ListAuditLogsInput) (AuditLogListOutput, error) {
	if in.Limit < 0 || in.Limit > 200 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.Offset < 0 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	filter := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		CreatedFrom: in.From,
		CreatedTo:   in.To,
		Limit:       in.Limit,
		Offset:      in.Offset,
	}

	if in.Action != "" {
		a := model.AuditAction(in.Action)
		switch a {
		case model.AuditActionCartMerge, model.AuditActionCartReplace,
			model.AuditActionCreateProduct, model.AuditActionUpdateProduct, model.AuditActionDeleteProduct:
		default:
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
		filter.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(in.ResourceType)
		if rt != model.AuditResourceCart && rt != model.AuditResourceProduct {
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
		}
		filter.ResourceType = &rt
	}
	if in.ResourceID != "" {
		id := in.ResourceID
		filter.ResourceID = &id
	}

	logs, err := u.auditRepo.List(ctx, filter)
	if err != nil {
		return AuditLogListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}

	limit := in.Limit
	if limit == 0 {
		limit = 50
	}
	return AuditLogListOutput{Items: logs, Limit: limit, Offset: in.Offset}, nil
}
