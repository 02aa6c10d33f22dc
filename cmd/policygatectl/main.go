package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL = envOr("POLICYGATE_URL", "http://localhost:8080")
		out     = envOr("POLICYGATE_OUT", "text")
		timeout = 30 * time.Second
	)

	root := &cobra.Command{
		Use:   "policygatectl",
		Short: "CLI operativa del gateway de decisiones",
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del gateway (env POLICYGATE_URL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, OutFormat: out, HTTP: &http.Client{Timeout: timeout}}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Verifica liveness (/healthz) y readiness (/readyz)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/healthz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("healthz fallo: status=%d body=%s", status, string(body))
			}
			status, body, err = cl.do("GET", "/readyz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("readyz fallo: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, body)
			return nil
		},
	}

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Muestra el JWK set público del gateway (/keys)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/keys", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("keys fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// decide: manda una assertion cruda y muestra el token de respuesta.
	var decideToken, decideFile string
	decideCmd := &cobra.Command{
		Use:   "decide",
		Short: "Envía una assertion firmada (POST /) y muestra la decisión",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := decideToken
			if tok == "" && decideFile != "" {
				b, err := os.ReadFile(decideFile)
				if err != nil {
					return err
				}
				tok = strings.TrimSpace(string(b))
			}
			if tok == "" {
				return fmt.Errorf("--token o --token-file es requerido")
			}
			payload, _ := json.Marshal(map[string]string{"token": tok})
			status, body, err := cl.do("POST", "/", payload)
			if err != nil {
				return err
			}
			cl.print(status, body)
			if status/100 != 2 {
				return fmt.Errorf("decide denegado: status=%d", status)
			}
			return nil
		},
	}
	decideCmd.Flags().StringVar(&decideToken, "token", "", "Compact token de la assertion entrante")
	decideCmd.Flags().StringVar(&decideFile, "token-file", "", "Archivo con el compact token")

	root.AddCommand(pingCmd)
	root.AddCommand(keysCmd)
	root.AddCommand(decideCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
