package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/halolight/halolight-api-go/internal/ids"
)

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(ctx context.Context, path, bearer string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "API base URL")
		grpcAddr = flag.String("grpc", "localhost:9090", "gRPC health address; empty skips the check")
	)
	flag.Parse()
	log.SetFlags(0)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *grpcAddr != "" {
		checkHealth(ctx, *grpcAddr)
	}

	c := &client{base: *baseURL, http: &http.Client{Timeout: 5 * time.Second}}
	id := ids.New()
	suffix := strings.ToLower(id[len(id)-8:])
	user := fmt.Sprintf("smoke_%s", suffix)

	var registered tokens
	status, err := c.post(ctx, "/auth/register", "", map[string]string{
		"email":    user + "@example.com",
		"username": user,
		"password": "smoke-pass-" + suffix,
	}, &registered)
	if err != nil || status != http.StatusCreated {
		log.Fatalf("register: status=%d err=%v", status, err)
	}
	if registered.AccessToken == "" || registered.AccessToken == registered.RefreshToken {
		log.Fatalf("register returned unusable tokens")
	}

	var rotated tokens
	status, err = c.post(ctx, "/auth/refresh", "", map[string]string{"refreshToken": registered.RefreshToken}, &rotated)
	if err != nil || status != http.StatusOK {
		log.Fatalf("refresh: status=%d err=%v", status, err)
	}
	if rotated.RefreshToken == registered.RefreshToken {
		log.Fatalf("refresh did not rotate the token")
	}

	status, err = c.post(ctx, "/auth/refresh", "", map[string]string{"refreshToken": registered.RefreshToken}, nil)
	if err != nil || status != http.StatusUnauthorized {
		log.Fatalf("reused refresh token: want 401, got status=%d err=%v", status, err)
	}

	status, err = c.post(ctx, "/auth/logout-all", rotated.AccessToken, nil, nil)
	if err != nil || status != http.StatusOK {
		log.Fatalf("logout-all: status=%d err=%v", status, err)
	}
	status, err = c.post(ctx, "/auth/refresh", "", map[string]string{"refreshToken": rotated.RefreshToken}, nil)
	if err != nil || status != http.StatusUnauthorized {
		log.Fatalf("refresh after logout-all: want 401, got status=%d err=%v", status, err)
	}

	fmt.Printf("smoke test passed: user=%s\n", user)
}

func checkHealth(ctx context.Context, addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc %s: %v", addr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health: %s", resp.GetStatus())
	}
}
