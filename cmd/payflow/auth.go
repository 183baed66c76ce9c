package main

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/payflow/internal/domain"
)

func init() {
	register(
		command{name: "login", summary: "Log in with email and password", public: true, run: runLogin},
		command{name: "signup", summary: "Create an account and log in", public: true, run: runSignup},
		command{name: "logout", summary: "End the session", public: true, run: runLogout},
		command{name: "whoami", summary: "Show the logged-in user", public: true, run: runWhoami},
		command{name: "passwd", summary: "Change the account password", run: runPasswd},
	)
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "login", "--email EMAIL [--password PASSWORD] [--remember]")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	remember := fs.Bool("remember", false, "remember the login preference")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *email == "" {
		var err error
		if *email, err = prompt(e, "Email"); err != nil {
			return err
		}
	}
	if *password == "" {
		var err error
		if *password, err = prompt(e, "Password"); err != nil {
			return err
		}
	}
	if *email == "" || *password == "" {
		return errors.New("email and password are required")
	}

	sess := e.app.Session
	if err := sess.Login(ctx, *email, *password); err != nil {
		return err
	}
	if err := sess.SaveRememberMe(ctx, *remember); err != nil {
		e.out.Warning(err.Error())
	}
	e.out.Success("Logged in as " + sess.Current().User.Email)
	return nil
}

func runSignup(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "signup", "--email EMAIL --name NAME [--phone PHONE] [--password PASSWORD]")
	var req domain.SignUpRequest
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.FullName, "name", "", "full name")
	fs.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&req.Password, "password", "", "password (prompted when empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if req.Password == "" {
		var err error
		if req.Password, err = prompt(e, "Password"); err != nil {
			return err
		}
	}
	if req.Email == "" || req.FullName == "" || req.Password == "" {
		return errors.New("email, name and password are required")
	}

	if err := e.app.Session.Signup(ctx, req); err != nil {
		return err
	}
	e.out.Success("Account created for " + req.Email)
	return nil
}

func runLogout(ctx context.Context, e *env, args []string) error {
	if !e.app.Session.IsAuthenticated() {
		e.out.Info("Not logged in")
		return nil
	}
	e.app.Session.Logout(ctx)
	e.out.Success("Logged out")
	return nil
}

func runWhoami(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "whoami", "[--profile]")
	profile := fs.Bool("profile", false, "fetch the full profile from the backend")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess := e.app.Session
	if !sess.IsAuthenticated() {
		e.out.Info("Not logged in")
		return nil
	}
	user := sess.Current().User
	if *profile {
		var err error
		if user, err = sess.LoadProfile(ctx); err != nil {
			return err
		}
	}

	e.out.Field("Email", user.Email)
	if user.FullName != "" {
		e.out.Field("Name", user.FullName)
	}
	if user.PhoneNumber != "" {
		e.out.Field("Phone", user.PhoneNumber)
	}
	if user.Role != "" {
		e.out.Field("Role", user.Role)
	}
	expiry := sess.Current().Expiry
	e.out.Field("Session expires", expiry.Local().Format(time.RFC1123))
	e.out.Field("Remember me", sess.RememberMe())
	return nil
}

func runPasswd(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "passwd", "[--current PASSWORD] [--new PASSWORD]")
	current := fs.String("current", "", "current password (prompted when empty)")
	next := fs.String("new", "", "new password (prompted when empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	for _, p := range []struct {
		value *string
		label string
	}{{current, "Current password"}, {next, "New password"}} {
		if *p.value != "" {
			continue
		}
		v, err := prompt(e, p.label)
		if err != nil {
			return err
		}
		*p.value = v
	}
	if *current == "" || *next == "" {
		return errors.New("both passwords are required")
	}
	return e.app.Session.ChangePassword(ctx, *current, *next)
}
