package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/config"
	"github.com/tonimelisma/box-go/internal/login"
	"github.com/tonimelisma/box-go/internal/sdk"
	"github.com/tonimelisma/box-go/internal/session"
)

// openBrowser launches the system browser. Replaced in tests.
var openBrowser = func(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Box in the browser",
		Long: `Run the OAuth2 authorization code flow. A local server on the configured
redirect URL receives the code, which is exchanged for a token pair and
saved to the token store. Only used with auth_mode = "oauth".`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("no-browser", false, "print the authorization URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and remove it from the token store",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}

	cmd.Flags().Bool("force", false, "clear the local token even if revocation fails")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show metadata of the stored token (never the token itself)",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	if cc.Cfg.AuthMode != config.AuthModeOAuth {
		return fmt.Errorf("login needs auth_mode %q, config has %q", config.AuthModeOAuth, cc.Cfg.AuthMode)
	}

	noBrowser, err := cmd.Flags().GetBool("no-browser")
	if err != nil {
		return err
	}

	s, err := cc.openSDK(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	flow := &login.Flow{
		Grants:      s.TokenManager(),
		RedirectURL: cc.Cfg.Endpoints.RedirectURL,
		OpenURL:     openBrowser,
		// The URL prompt is always shown, even with --quiet.
		Prompt: cc.Err,
		Logger: cc.Logger,
	}

	if noBrowser {
		flow.OpenURL = nil
	}

	cc.Logger.Info("login started", slog.String("redirect_url", flow.RedirectURL))

	info, err := flow.Run(ctx)
	if err != nil {
		return err
	}

	if err := s.Store().Write(ctx, info); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	cc.Logger.Info("login successful", slog.String("backend", s.Stores().Backend()))

	client, err := s.PersistentClient(ctx, &info, s.Store())
	if err != nil {
		return err
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		cc.Logger.Warn("fetching user after login", slog.String("error", err.Error()))
		cc.Statusf("Login successful.\n")

		return nil
	}

	if ms, ok := s.Store().(metaStore); ok {
		if err := ms.MergeMeta(map[string]string{"login": user.Login, "user_id": user.ID}); err != nil {
			cc.Logger.Warn("caching account metadata", slog.String("error", err.Error()))
		}
	}

	cc.Statusf("Logged in as %s (%s).\n", user.Name, user.Login)

	return nil
}

// metaStore is a token store that also caches account metadata.
type metaStore interface {
	Meta() (map[string]string, error)
	MergeMeta(meta map[string]string) error
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	s, err := cc.openSDK(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := s.DefaultClient(ctx)
	if errors.Is(err, session.ErrNotLoggedIn) {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	if err != nil {
		return err
	}

	err = client.Revoke(ctx)

	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotLoggedIn):
		cc.Statusf("Not logged in.\n")
		return nil
	case force:
		cc.Logger.Warn("revocation failed, clearing local token", slog.String("error", err.Error()))

		if store := activeStore(s); store != nil {
			if clearErr := store.Clear(ctx); clearErr != nil {
				return fmt.Errorf("clearing token store: %w", clearErr)
			}
		}
	default:
		return fmt.Errorf("revoking token (use --force to clear it locally): %w", err)
	}

	cc.Logger.Info("logout successful")
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Login       string `json:"login"`
	Status      string `json:"status,omitempty"`
	SpaceUsed   int64  `json:"space_used"`
	SpaceAmount int64  `json:"space_amount"`
	AuthMode    string `json:"auth_mode"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("fetching current user: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, whoamiOutput{
			ID:          user.ID,
			Name:        user.Name,
			Login:       user.Login,
			Status:      user.Status,
			SpaceUsed:   user.SpaceUsed,
			SpaceAmount: user.SpaceAmount,
			AuthMode:    cc.Cfg.AuthMode,
		})
	}

	fmt.Fprintf(cc.Out, "User:  %s (%s)\n", user.Name, user.Login)
	fmt.Fprintf(cc.Out, "ID:    %s\n", user.ID)
	fmt.Fprintf(cc.Out, "Space: %s / %s\n", formatSize(user.SpaceUsed), formatSize(user.SpaceAmount))
	fmt.Fprintf(cc.Out, "Auth:  %s\n", cc.Cfg.AuthMode)

	return nil
}

// tokenOutput is the JSON schema for `token --json`. It carries no secrets.
type tokenOutput struct {
	Backend         string `json:"backend"`
	Login           string `json:"login,omitempty"`
	TokenType       string `json:"token_type,omitempty"`
	AcquiredAt      string `json:"acquired_at,omitempty"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	Valid           bool   `json:"valid"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	s, err := cc.openSDK(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	store := activeStore(s)
	if store == nil {
		return fmt.Errorf("auth_mode %q does not store tokens", cc.Cfg.AuthMode)
	}

	info, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading token store: %w", err)
	}

	if info == nil {
		return errors.New("no stored token")
	}

	out := describeToken(s.Stores().Backend(), info, cc.Cfg.Network.ExpiryBufferDuration(), time.Now())

	if ms, ok := store.(metaStore); ok {
		if meta, err := ms.Meta(); err == nil {
			out.Login = meta["login"]
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	fmt.Fprintf(cc.Out, "Backend:       %s\n", out.Backend)

	if out.Login != "" {
		fmt.Fprintf(cc.Out, "Login:         %s\n", out.Login)
	}

	fmt.Fprintf(cc.Out, "Type:          %s\n", out.TokenType)
	fmt.Fprintf(cc.Out, "Acquired:      %s\n", formatTime(info.AcquiredAt))
	fmt.Fprintf(cc.Out, "Expires:       %s\n", formatTime(info.AccessTokenExpiresAt))
	fmt.Fprintf(cc.Out, "Valid:         %t\n", out.Valid)
	fmt.Fprintf(cc.Out, "Refresh token: %t\n", out.HasRefreshToken)

	return nil
}

func describeToken(backend string, info *auth.TokenInfo, buffer time.Duration, now time.Time) tokenOutput {
	return tokenOutput{
		Backend:         backend,
		TokenType:       info.TokenType,
		AcquiredAt:      formatRFC3339(info.AcquiredAt),
		ExpiresAt:       formatRFC3339(info.AccessTokenExpiresAt),
		Valid:           info.Valid(now, buffer),
		HasRefreshToken: info.RefreshToken != "",
	}
}

// activeStore returns the store holding the configured mode's token, or nil
// for modes that keep tokens in memory only.
func activeStore(s *sdk.Configured) session.TokenStore {
	cfg := s.Config()

	switch cfg.AuthMode {
	case config.AuthModeOAuth:
		return s.Store()
	case config.AuthModeJWT:
		if cfg.AppAuth.EnterpriseID != "" {
			return s.Stores().For(sdk.AppAuthKey(auth.SubjectEnterprise, cfg.AppAuth.EnterpriseID))
		}

		return s.Stores().For(sdk.AppAuthKey(auth.SubjectUser, cfg.AppAuth.UserID))
	default:
		return nil
	}
}
