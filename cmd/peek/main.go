package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dgnsrekt/quickpeek/internal/controller"
	"github.com/dgnsrekt/quickpeek/internal/peek"
)

const usage = `usage: peek [-addr host:port] [-origin target-id] <url>
       peek [-addr host:port] promote|discard|dismiss <tab-id>
       peek [-addr host:port] list`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "peek: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("peek", flag.ContinueOnError)
	addr := fs.String("addr", envOr("PEEK_ADDR", "127.0.0.1:8190"), "peekd address")
	origin := fs.String("origin", "", "CDP target id of the origin tab")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	fs.Usage = func() { _, _ = fmt.Fprintln(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	c := &client{base: "http://" + strings.TrimPrefix(*addr, "http://"), http: http.DefaultClient}

	switch rest[0] {
	case "list":
		var body struct {
			Peeks []peek.SessionInfo `json:"peeks"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/peeks", nil, &body); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TAB\tSTATUS\tFRAMES\tURL")
		for _, p := range body.Peeks {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.TabID, p.Status, p.Frames, p.TargetURL)
		}
		return tw.Flush()
	case "promote", "discard", "dismiss":
		if len(rest) != 2 {
			return fmt.Errorf("%s needs a tab id\n%s", rest[0], usage)
		}
		if err := c.do(ctx, http.MethodPost, "/api/v1/peeks/"+rest[1]+"/"+rest[0], nil, nil); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "%s %s\n", rest[0], rest[1])
		return err
	default:
		if len(rest) != 1 {
			return errors.New(usage)
		}
		req := map[string]string{"url": rest[0]}
		if *origin != "" {
			req["origin_target_id"] = *origin
		}
		var res controller.LaunchResult
		if err := c.do(ctx, http.MethodPost, "/api/v1/peeks", req, &res); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "%s %s\n", res.TabID, res.TargetURL)
		return err
	}
}

type client struct {
	base string
	http *http.Client
}

// apiError is the problem document huma returns for failed requests.
type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
