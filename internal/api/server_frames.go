package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/quickpeek/internal/snapshot"
)

func registerFrameHandlers(api huma.API, svc Service) {
	type frameIDInput struct {
		FrameID string `path:"frame_id"`
	}

	type listFramesOutput struct {
		Body struct {
			Frames []snapshot.FrameMeta `json:"frames"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-frames", Method: http.MethodGet, Path: "/api/v1/frames", Summary: "List archived frames", Description: "Newest first. Requires an archive directory.", Tags: []string{"Frames"}},
		func(ctx context.Context, input *struct {
			Tab string `query:"tab" doc:"Only frames captured for this hidden tab id"`
		}) (*listFramesOutput, error) {
			metas, err := svc.ListFrames(ctx, input.Tab)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listFramesOutput{}
			out.Body.Frames = metas
			if out.Body.Frames == nil {
				out.Body.Frames = []snapshot.FrameMeta{}
			}
			return out, nil
		})

	type frameOutput struct {
		Body struct {
			Frame snapshot.FrameMeta `json:"frame"`
			URL   string             `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-frame", Method: http.MethodGet, Path: "/api/v1/frames/{frame_id}", Summary: "Get frame metadata", Tags: []string{"Frames"}},
		func(ctx context.Context, input *frameIDInput) (*frameOutput, error) {
			meta, err := svc.GetFrame(ctx, input.FrameID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &frameOutput{}
			out.Body.Frame = meta
			out.Body.URL = "/api/v1/frames/" + meta.ID + "/image"
			return out, nil
		})

	type frameImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-frame-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/frames/{frame_id}/image",
		Summary:     "Get frame image",
		Tags:        []string{"Frames"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Frame image",
				Content: map[string]*huma.MediaType{
					"image/png":  {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"image/jpeg": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				},
			},
		},
	}, func(ctx context.Context, input *frameIDInput) (*frameImageOutput, error) {
		data, format, err := svc.ReadFrameImage(ctx, input.FrameID)
		if err != nil {
			return nil, mapErr(err)
		}
		ct := "image/png"
		if format == "jpeg" || format == "jpg" {
			ct = "image/jpeg"
		}
		return &frameImageOutput{ContentType: ct, Body: data}, nil
	})

	type deleteFrameOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-frame", Method: http.MethodDelete, Path: "/api/v1/frames/{frame_id}", Summary: "Delete frame", Tags: []string{"Frames"}},
		func(ctx context.Context, input *frameIDInput) (*deleteFrameOutput, error) {
			if err := svc.DeleteFrame(ctx, input.FrameID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteFrameOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}
