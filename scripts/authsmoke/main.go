// Command authsmoke exercises the credential lifecycle against a running
// registry instance: register, login, refresh rotation, replay rejection,
// and logout revocation. Exit code 1 means at least one check failed.
//
// Usage:
//
//	go run ./scripts/authsmoke -base http://localhost:8080 -prefix /api/v1
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"
)

type check struct {
	Name string
	Err  error
}

type authBody struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	} `json:"data"`
}

func main() {
	var (
		base    string
		prefix  string
		timeout time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Timeout: timeout, Jar: jar}
	root := base + prefix

	email := fmt.Sprintf("smoke-%d@example.org", time.Now().UnixNano())
	password := "smoke-Passw0rd!"

	var checks []check
	run := func(name string, fn func() error) {
		checks = append(checks, check{Name: name, Err: fn()})
	}

	run("register", func() error {
		status, _, err := postJSON(client, root+"/auth/register", map[string]string{
			"email":       email,
			"password":    password,
			"full_name":   "Smoke Probe",
			"national_id": randomNationalID(),
		})
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fmt.Errorf("expected 201, got %d", status)
		}
		return nil
	})

	var firstRefresh, rotatedRefresh string
	run("login", func() error {
		status, body, err := postJSON(client, root+"/auth/login", map[string]string{
			"email":    email,
			"password": password,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("expected 200, got %d", status)
		}
		var parsed authBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return err
		}
		if parsed.Data.AccessToken == "" || parsed.Data.RefreshToken == "" {
			return fmt.Errorf("login response missing tokens")
		}
		firstRefresh = parsed.Data.RefreshToken
		return nil
	})

	run("refresh rotates", func() error {
		status, body, err := postJSON(client, root+"/auth/refresh", map[string]string{
			"refresh_token": firstRefresh,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("expected 200, got %d", status)
		}
		var parsed authBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return err
		}
		if parsed.Data.RefreshToken == firstRefresh {
			return fmt.Errorf("refresh token was not rotated")
		}
		rotatedRefresh = parsed.Data.RefreshToken
		return nil
	})

	run("replayed token rejected", func() error {
		status, _, err := postJSON(client, root+"/auth/refresh", map[string]string{
			"refresh_token": firstRefresh,
		})
		if err != nil {
			return err
		}
		if status != http.StatusUnauthorized {
			return fmt.Errorf("replayed refresh token accepted, got %d", status)
		}
		return nil
	})

	var accessToken string
	run("rotated token still valid", func() error {
		status, body, err := postJSON(client, root+"/auth/refresh", map[string]string{
			"refresh_token": rotatedRefresh,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("expected 200, got %d", status)
		}
		var parsed authBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return err
		}
		accessToken = parsed.Data.AccessToken
		rotatedRefresh = parsed.Data.RefreshToken
		return nil
	})

	run("logout revokes refresh tokens", func() error {
		req, err := http.NewRequest(http.MethodPost, root+"/auth/logout", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("expected 204, got %d", resp.StatusCode)
		}

		status, _, err := postJSON(client, root+"/auth/refresh", map[string]string{
			"refresh_token": rotatedRefresh,
		})
		if err != nil {
			return err
		}
		if status != http.StatusUnauthorized {
			return fmt.Errorf("refresh token survived logout, got %d", status)
		}
		return nil
	})

	failed := 0
	for _, c := range checks {
		if c.Err != nil {
			failed++
			fmt.Printf("FAIL  %-28s %v\n", c.Name, c.Err)
		} else {
			fmt.Printf("ok    %s\n", c.Name)
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d checks failed\n", failed, len(checks))
		os.Exit(1)
	}
	fmt.Printf("all %d checks passed\n", len(checks))
}

// randomNationalID builds an identity number that passes the registration
// checksum: nine clock-derived digits plus the two check digits.
func randomNationalID() string {
	n := time.Now().UnixNano()%900000000 + 100000000

	var digits [11]int
	for i := 8; i >= 0; i-- {
		digits[i] = int(n % 10)
		n /= 10
	}

	odd := digits[0] + digits[2] + digits[4] + digits[6] + digits[8]
	even := digits[1] + digits[3] + digits[5] + digits[7]
	digits[9] = ((odd*7-even)%10 + 10) % 10

	sum := 0
	for i := 0; i < 10; i++ {
		sum += digits[i]
	}
	digits[10] = sum % 10

	out := make([]byte, 11)
	for i, d := range digits {
		out[i] = byte('0' + d)
	}
	return string(out)
}

func postJSON(client *http.Client, url string, payload interface{}) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}
