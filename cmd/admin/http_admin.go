package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type TriggerCmd struct {
	What string `arg:"" enum:"snapshot,desync" help:"What to run: snapshot or desync."`
	URL  string `help:"Server base url." default:"http://127.0.0.1:8080"`
}

func (c *TriggerCmd) Run(ctx context.Context, g *Globals) error {
	u := strings.TrimRight(strings.TrimSpace(c.URL), "/") + "/admin/v1/" + c.What
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(g.Out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
