package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/quickpeek/internal/cdpcontrol"
	"github.com/dgnsrekt/quickpeek/internal/controller"
	"github.com/dgnsrekt/quickpeek/internal/peek"
	"github.com/dgnsrekt/quickpeek/internal/relay"
)

type tabIDInput struct {
	TabID string `path:"tab_id" doc:"Hidden tab id, <window>-<target>" example:"1-3F2A9C"`
}

type statusOutput struct {
	Body struct {
		TabID  string `json:"tab_id"`
		Status string `json:"status"`
	}
}

func registerHealthHandlers(api huma.API, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status        string `json:"status"`
			StreamClients int    `json:"stream_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if broker != nil {
				out.Body.StreamClients = broker.ClientCount()
			}
			return out, nil
		})
}

func registerPeekHandlers(api huma.API, svc Service, limiter *rate.Limiter) {
	type launchOutput struct {
		Body controller.LaunchResult
	}
	huma.Register(api, huma.Operation{OperationID: "launch-peek", Method: http.MethodPost, Path: "/api/v1/peeks", Summary: "Preview a link", Description: "Opens the link in a hidden tab and shows the capture overlay on the origin tab. Redirect links carrying a url= parameter are unwrapped first.", Tags: []string{"Peeks"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				URL            string `json:"url" doc:"Link to preview" example:"https://example.com/article"`
				OriginTargetID string `json:"origin_target_id,omitempty" doc:"CDP target id of the origin tab. Defaults to the first page matching the origin filter."`
			}
		}) (*launchOutput, error) {
			if limiter != nil && !limiter.Allow() {
				return nil, huma.Error429TooManyRequests("too many preview launches")
			}
			res, err := svc.Launch(ctx, input.Body.URL, input.Body.OriginTargetID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &launchOutput{Body: res}, nil
		})

	type listPeeksOutput struct {
		Body struct {
			Peeks []peek.SessionInfo `json:"peeks"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-peeks", Method: http.MethodGet, Path: "/api/v1/peeks", Summary: "List active previews", Tags: []string{"Peeks"}},
		func(ctx context.Context, input *struct{}) (*listPeeksOutput, error) {
			out := &listPeeksOutput{}
			out.Body.Peeks = svc.ListPeeks(ctx)
			if out.Body.Peeks == nil {
				out.Body.Peeks = []peek.SessionInfo{}
			}
			return out, nil
		})

	type peekOutput struct {
		Body peek.SessionInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-peek", Method: http.MethodGet, Path: "/api/v1/peeks/{tab_id}", Summary: "Get preview", Tags: []string{"Peeks"}},
		func(ctx context.Context, input *tabIDInput) (*peekOutput, error) {
			info, err := svc.GetPeek(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &peekOutput{Body: info}, nil
		})

	intents := []struct {
		id, action, status, summary string
		apply                       func(context.Context, string) error
	}{
		{"promote-peek", "promote", "promoted", "Switch to the previewed tab", svc.Promote},
		{"discard-peek", "discard", "discarded", "Close the previewed tab", svc.Discard},
		{"dismiss-peek", "dismiss", "dismissed", "Close the overlay and keep the tab", svc.Dismiss},
	}
	for _, it := range intents {
		huma.Register(api, huma.Operation{OperationID: it.id, Method: http.MethodPost, Path: "/api/v1/peeks/{tab_id}/" + it.action, Summary: it.summary, Tags: []string{"Peeks"}},
			func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
				if err := it.apply(ctx, input.TabID); err != nil {
					return nil, mapErr(err)
				}
				out := &statusOutput{}
				out.Body.TabID = input.TabID
				out.Body.Status = it.status
				return out, nil
			})
	}

	type pagesOutput struct {
		Body struct {
			Pages []cdpcontrol.PageInfo `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pages", Method: http.MethodGet, Path: "/api/v1/pages", Summary: "List browser pages", Description: "Pages that can act as the origin of a preview.", Tags: []string{"Browser"}},
		func(ctx context.Context, input *struct{}) (*pagesOutput, error) {
			pages, err := svc.ListPages(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pagesOutput{}
			out.Body.Pages = pages
			if out.Body.Pages == nil {
				out.Body.Pages = []cdpcontrol.PageInfo{}
			}
			return out, nil
		})
}
