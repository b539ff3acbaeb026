package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"user-auth/internal/app"
	"user-auth/internal/config"
	"user-auth/internal/email"
	"user-auth/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	store, closeStore, err := app.OpenAccountStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	// El OTP se imprime en el log para poder verificar sin un servidor SMTP.
	accountSvc, err := app.NewAccountService(cfg, logger, store, email.NewLogSender(logger))
	if err != nil {
		log.Fatal(err)
	}

	cli := &authCLI{svc: accountSvc, reader: reader, out: os.Stdout}
	if err := cli.run(ctx); err != nil && !errors.Is(err, io.EOF) {
		log.Fatal(err)
	}
}

type authCLI struct {
	svc    *service.AccountService
	reader *bufio.Reader
	out    io.Writer
	token  string
}

func (c *authCLI) run(ctx context.Context) error {
	for {
		fmt.Fprintln(c.out, "\n===== user-auth =====")
		fmt.Fprintln(c.out, "[1] Registrarse")
		fmt.Fprintln(c.out, "[2] Verificar codigo")
		fmt.Fprintln(c.out, "[3] Login")
		fmt.Fprintln(c.out, "[4] Ver perfil")
		fmt.Fprintln(c.out, "[5] Cambiar bio")
		fmt.Fprintln(c.out, "[6] Borrar bio")
		fmt.Fprintln(c.out, "[7] Salir")

		choice, err := c.prompt("Selecciona una opcion: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = c.signupFlow(ctx)
		case "2":
			err = c.verifyFlow(ctx)
		case "3":
			err = c.loginFlow(ctx)
		case "4":
			err = c.profileFlow(ctx)
		case "5":
			err = c.setBioFlow(ctx)
		case "6":
			err = c.clearBioFlow(ctx)
		case "7":
			return nil
		default:
			fmt.Fprintln(c.out, "Opcion invalida.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return err
		}
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func (c *authCLI) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *authCLI) signupFlow(ctx context.Context) error {
	username, err := c.prompt("Usuario: ")
	if err != nil {
		return err
	}
	emailAddr, err := c.prompt("Email: ")
	if err != nil {
		return err
	}
	password, err := c.prompt("Contrasena: ")
	if err != nil {
		return err
	}
	if err := c.svc.SignupRequest(ctx, service.SignupInput{Username: username, Email: emailAddr, Password: password}); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Codigo enviado. Revisa el log para verlo.")
	return nil
}

func (c *authCLI) verifyFlow(ctx context.Context) error {
	emailAddr, err := c.prompt("Email: ")
	if err != nil {
		return err
	}
	code, err := c.prompt("Codigo: ")
	if err != nil {
		return err
	}
	acc, err := c.svc.SignupVerify(ctx, emailAddr, code)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Cuenta creada: %s (%s)\n", acc.Username, acc.ID)
	return nil
}

func (c *authCLI) loginFlow(ctx context.Context) error {
	username, err := c.prompt("Usuario: ")
	if err != nil {
		return err
	}
	password, err := c.prompt("Contrasena: ")
	if err != nil {
		return err
	}
	session, err := c.svc.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c.token = session.AccessToken
	fmt.Fprintf(c.out, "Sesion iniciada, vence %s\n", session.ExpiresAt.Local().Format("15:04:05"))
	return nil
}

func (c *authCLI) profileFlow(ctx context.Context) error {
	profile, err := c.svc.GetProfile(ctx, c.token)
	if err != nil {
		return err
	}
	c.printProfile(profile.Username, profile.Email, profile.Bio)
	return nil
}

func (c *authCLI) setBioFlow(ctx context.Context) error {
	bio, err := c.prompt("Bio: ")
	if err != nil {
		return err
	}
	profile, err := c.svc.SetBio(ctx, c.token, bio)
	if err != nil {
		return err
	}
	c.printProfile(profile.Username, profile.Email, profile.Bio)
	return nil
}

func (c *authCLI) clearBioFlow(ctx context.Context) error {
	profile, err := c.svc.ClearBio(ctx, c.token)
	if err != nil {
		return err
	}
	c.printProfile(profile.Username, profile.Email, profile.Bio)
	return nil
}

func (c *authCLI) printProfile(username, emailAddr string, bio *string) {
	fmt.Fprintf(c.out, "Usuario: %s\nEmail: %s\n", username, emailAddr)
	if bio == nil {
		fmt.Fprintln(c.out, "Bio: (sin bio)")
		return
	}
	fmt.Fprintf(c.out, "Bio: %s\n", *bio)
}
