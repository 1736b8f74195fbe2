// Command smoke races first-admin bootstrap against a running API and
// checks that exactly one caller wins.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/ids"
	"laundrydesk.io/internal/obs"
)

func main() {
	log := obs.Component("smoke")
	var (
		baseURL = flag.String("url", envOr("LAUNDRYDESK_API_URL", "http://localhost:8080"), "API base URL")
		secret  = flag.String("secret", os.Getenv("LAUNDRYDESK_AUTH_SECRET"), "HMAC secret shared with the API")
		issuer  = flag.String("issuer", envOr("LAUNDRYDESK_AUTH_ISSUER", auth.DefaultIssuer), "Token issuer")
		callers = flag.Int("callers", 8, "Concurrent bootstrap callers")
	)
	flag.Parse()

	verifier, err := auth.NewTokenVerifier(*secret, auth.WithIssuer(*issuer))
	if err != nil {
		log.WithError(err).Fatal("token verifier")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := ids.New()
	tokens := make([]string, *callers)
	for i := range tokens {
		tokens[i], err = verifier.GenerateToken(fmt.Sprintf("smoke-%s-%d", run, i), "", time.Minute)
		if err != nil {
			log.WithError(err).Fatal("generate token")
		}
	}

	var state struct {
		State string `json:"state"`
	}
	if _, err := call(ctx, client, http.MethodGet, *baseURL+"/v1/bootstrap", tokens[0], &state); err != nil {
		log.WithError(err).Fatal("bootstrap state")
	}
	log.WithField("state", state.State).Info("bootstrap state before race")

	var won, lost atomic.Int32
	winner := make([]bool, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, tok := range tokens {
		g.Go(func() error {
			code, err := call(gctx, client, http.MethodPost, *baseURL+"/v1/bootstrap", tok, nil)
			switch {
			case err != nil && code == 0:
				return err
			case code == http.StatusCreated:
				won.Add(1)
				winner[i] = true
			case code == http.StatusConflict:
				lost.Add(1)
			default:
				return fmt.Errorf("caller %d: unexpected status %d", i, code)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("bootstrap race")
	}

	expected := int32(1)
	if state.State != "no_admins" {
		expected = 0
	}
	if won.Load() != expected {
		log.Fatalf("expected %d winner(s), got %d (lost=%d)", expected, won.Load(), lost.Load())
	}
	for i, ok := range winner {
		if !ok {
			continue
		}
		if code, err := call(ctx, client, http.MethodGet, *baseURL+"/v1/admins", tokens[i], nil); err != nil || code != http.StatusOK {
			log.Fatalf("winner cannot list admins: status=%d err=%v", code, err)
		}
	}
	log.WithField("winners", won.Load()).WithField("losers", lost.Load()).Info("bootstrap smoke test passed")
}

func call(ctx context.Context, client *http.Client, method, url, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, url, resp.StatusCode, strings.TrimSpace(body.Code))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
