package cli

import (
	"context"
	"flag"
	"fmt"

	"bullwatch/internal/models"

	"github.com/google/subcommands"
)

// authCmd is login or signup; both take the same credentials.
type authCmd struct {
	app      *App
	name     string
	email    string
	password string
}

func (c *authCmd) Name() string { return c.name }
func (c *authCmd) Synopsis() string {
	if c.name == "signup" {
		return "create an account and keep its session"
	}
	return "log in and keep the session for later commands"
}
func (c *authCmd) Usage() string {
	return fmt.Sprintf(`%s [-email <addr>] [-password <pw>]:
  Prompts on stdin for anything not given as a flag.
`, c.name)
}

func (c *authCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "account email")
	f.StringVar(&c.password, "password", "", "account password")
}

func (c *authCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	var err error
	if c.email == "" {
		if c.email, err = a.readLine("Email: "); err != nil {
			return a.fail("reading email", err)
		}
	}
	if c.password == "" {
		if c.password, err = a.readLine("Password: "); err != nil {
			return a.fail("reading password", err)
		}
	}

	do := a.Session.Login
	if c.name == "signup" {
		do = a.Session.Signup
	}
	sess, err := do(ctx, c.email, c.password)
	if err != nil {
		return a.fail(c.name, err)
	}
	a.printf("Logged in as %s\n", sess.Email)
	return subcommands.ExitSuccess
}

type logoutCmd struct{ app *App }

func (*logoutCmd) Name() string           { return "logout" }
func (*logoutCmd) Synopsis() string       { return "forget the stored session" }
func (*logoutCmd) Usage() string          { return "logout\n" }
func (*logoutCmd) SetFlags(*flag.FlagSet) {}

func (c *logoutCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.app.Session.Logout(); err != nil {
		return c.app.fail("logout", err)
	}
	c.app.printf("Logged out\n")
	return subcommands.ExitSuccess
}

type whoamiCmd struct{ app *App }

func (*whoamiCmd) Name() string           { return "whoami" }
func (*whoamiCmd) Synopsis() string       { return "show the account behind the stored session" }
func (*whoamiCmd) Usage() string          { return "whoami\n" }
func (*whoamiCmd) SetFlags(*flag.FlagSet) {}

func (c *whoamiCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if !a.Session.IsAuthenticated() {
		fmt.Fprintln(a.Err, "Not logged in. Run: login")
		return subcommands.ExitFailure
	}
	p, err := a.Session.Profile(ctx)
	if err != nil {
		return a.fail("whoami", err)
	}
	a.printf("%s\n", profileLine(p))
	return subcommands.ExitSuccess
}

func profileLine(p models.Profile) string {
	if p.ID == 0 {
		return p.Email
	}
	return fmt.Sprintf("%s (id %d)", p.Email, p.ID)
}

// requireLogin prints the login hint when no session is stored.
func (a *App) requireLogin() bool {
	if a.Session.IsAuthenticated() {
		return true
	}
	fmt.Fprintln(a.Err, "Not logged in. Run: login")
	return false
}
