package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/keyserver-api/internal/handler/dto"
	"github.com/yourusername/keyserver-api/internal/service/keystore"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
	Out       io.Writer
}

func (c *client) do(method, path string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

// call выполняет запрос и превращает не-2xx ответ в ошибку с текстом сервера
func (c *client) call(method, path string) ([]byte, error) {
	status, body, err := c.do(method, path)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		var e dto.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s (status=%d)", e.Error, status)
		}
		return nil, fmt.Errorf("status=%d body=%s", status, string(body))
	}
	return body, nil
}

// print выводит JSON как есть (с отступами) или текстовое представление
func (c *client) print(body []byte, text func() string) {
	if c.OutFormat == "json" || text == nil {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(c.Out, string(p))
			return
		}
		fmt.Fprintln(c.Out, string(body))
		return
	}
	fmt.Fprintln(c.Out, text())
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL = envOr("KEYSERVER_URL", "http://localhost:8080")
		format  = envOr("KEYSERVER_OUT", "text")
		timeout = 10 * time.Second
	)
	cl := &client{Out: out}

	root := &cobra.Command{
		Use:          "keyctl",
		Short:        "CLI для JSON API сервера ключей",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "text" {
				return fmt.Errorf("--output must be json or text, got %q", format)
			}
			cl.BaseURL = baseURL
			cl.OutFormat = format
			cl.HTTP = &http.Client{Timeout: timeout}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "Базовый URL сервера (env KEYSERVER_URL)")
	root.PersistentFlags().StringVarP(&format, "output", "o", format, "Формат вывода: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Таймаут HTTP запроса")

	var count int
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Выпустить пачку ключей",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/keys"
			if count > 0 {
				path += "?count=" + strconv.Itoa(count)
			}
			body, err := cl.call(http.MethodPost, path)
			if err != nil {
				return err
			}
			var resp dto.GenerateKeysResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return err
			}
			cl.print(body, func() string { return strings.Join(resp.Keys, "\n") })
			return nil
		},
	}
	generateCmd.Flags().IntVarP(&count, "count", "n", 0, "Количество ключей (по умолчанию размер пачки сервера)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Получить свободный ключ (он будет заблокирован)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(http.MethodPost, "/api/keys/serve")
			if err != nil {
				return err
			}
			var resp dto.ServeKeyResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return err
			}
			cl.print(body, func() string { return resp.Key })
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать все списки ключей",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(http.MethodGet, "/api/keys")
			if err != nil {
				return err
			}
			var snap keystore.Snapshot
			if err := json.Unmarshal(body, &snap); err != nil {
				return err
			}
			cl.print(body, func() string { return formatSnapshot(snap) })
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Показать размеры пула и счётчики",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(http.MethodGet, "/api/stats")
			if err != nil {
				return err
			}
			cl.print(body, nil)
			return nil
		},
	}

	root.AddCommand(
		generateCmd,
		serveCmd,
		keyActionCmd(cl, "block", "Заблокировать ключ", http.MethodPut, "/block"),
		keyActionCmd(cl, "unblock", "Разблокировать ключ", http.MethodPut, "/unblock"),
		keyActionCmd(cl, "ping", "Продлить жизнь ключа", http.MethodPut, "/ping"),
		keyActionCmd(cl, "delete", "Удалить ключ", http.MethodDelete, ""),
		listCmd,
		statsCmd,
	)
	return root
}

// keyActionCmd строит команду вида "keyctl <action> <key>"
func keyActionCmd(cl *client, use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(method, "/api/keys/"+args[0]+suffix)
			if err != nil {
				return err
			}
			var resp dto.KeyActionResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return err
			}
			cl.print(body, func() string {
				if resp.Already {
					return "already " + resp.Result
				}
				return resp.Result
			})
			return nil
		},
	}
}

func formatSnapshot(snap keystore.Snapshot) string {
	var b bytes.Buffer
	section := func(title string, keys []string) {
		fmt.Fprintf(&b, "%s (%d):\n", title, len(keys))
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s\n", k)
		}
	}
	section("blocked", snap.Blocked)
	section("unblocked", snap.Unblocked)
	section("deleted", snap.Deleted)
	return strings.TrimRight(b.String(), "\n")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
