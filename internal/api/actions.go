package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/actiond/internal/api/models"
	"github.com/smazurov/actiond/internal/supervisor"
)

func (s *Server) registerActionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/api/actions",
		Summary:     "List Actions",
		Description: "Supervision state of every discovered action",
		Tags:        []string{"actions"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.ActionListResponse, error) {
		infos, err := s.status.Snapshot(ctx)
		if err != nil {
			return nil, statusError(err)
		}

		actions := make([]models.ActionData, 0, len(infos))
		for _, info := range infos {
			actions = append(actions, toActionData(info))
		}
		return &models.ActionListResponse{
			Body: models.ActionListData{Actions: actions, Count: len(actions)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/api/actions/{name}",
		Summary:     "Get Action",
		Description: "Supervision state and crash history of one action",
		Tags:        []string{"actions"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(ctx context.Context, input *models.ActionRequest) (*models.ActionResponse, error) {
		info, err := s.status.Status(ctx, input.Name)
		if err != nil {
			return nil, statusError(err)
		}
		return &models.ActionResponse{Body: toActionData(info)}, nil
	})
}

func statusError(err error) error {
	if errors.Is(err, supervisor.ErrUnknownAction) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error503ServiceUnavailable("supervisor unavailable", err)
}

func toActionData(info supervisor.Info) models.ActionData {
	data := models.ActionData{
		Name:          info.Name,
		Version:       info.Version,
		Root:          info.Root,
		Target:        info.Target,
		State:         string(info.State),
		InstanceID:    info.InstanceID,
		Generation:    info.Generation,
		RestartCount:  info.RestartCount,
		WindowCrashes: info.WindowCrashes,
		TotalCrashes:  info.TotalCrashes,
		LaunchedAt:    optionalTime(info.LaunchedAt),
		LastCrashAt:   optionalTime(info.LastCrashAt),
	}
	if info.LastError != nil {
		data.LastError = info.LastError.Error()
	}
	return data
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
