package main

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/phone"
	"github.com/civichero/civichero/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	copyCode  bool

	otpCmd = &cobra.Command{
		Use:   "otp",
		Short: "Talk to a running verification service",
		Long:  paragraph(fmt.Sprintf("\nRequest and check %s against a running %s.", keyword("verification codes"), keyword("civichero serve"))),
		Args:  cobra.NoArgs,
	}

	otpSendCmd = &cobra.Command{
		Use:     "send PHONE",
		Short:   "Request a verification code",
		Example: paragraph("civichero otp send 0712345678\ncivichero otp send +254712345678 --copy"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := phone.Normalize(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}

			res, err := newClient().Send(cmd.Context(), number)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ " + res.Message))
			if res.DevelopmentOTP == "" {
				return nil
			}

			fmt.Printf("Code for %s: %s\n", phone.Mask(number), keyword(res.DevelopmentOTP))
			if copyCode {
				if err := clipboard.WriteAll(res.DevelopmentOTP); err != nil {
					log.Warn("Could not copy code to clipboard", "err", err)
				} else {
					fmt.Println(subtleStyle.Render("Copied to clipboard."))
				}
			}
			return nil
		},
	}

	otpVerifyCmd = &cobra.Command{
		Use:     "verify PHONE CODE",
		Short:   "Check a verification code",
		Example: paragraph("civichero otp verify 0712345678 042195"),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := phone.Normalize(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}

			res, err := newClient().Verify(cmd.Context(), number, strings.TrimSpace(args[1]))
			if err != nil {
				fmt.Println(failureStyle.Render("✗ " + err.Error()))
				return err
			}
			fmt.Println(successStyle.Render("✓ " + res.Message))
			if u := res.User; u != nil {
				fmt.Println(subtleStyle.Render(fmt.Sprintf("user %s · level %d · %d tokens", u.ID, u.Level, u.Tokens)))
			}
			return nil
		},
	}
)

func init() {
	otpCmd.PersistentFlags().StringVar(&serverURL, "server", "", "service URL (default derived from server.addr)")
	otpSendCmd.Flags().BoolVarP(&copyCode, "copy", "c", false, "copy a development code to the clipboard")
	otpCmd.AddCommand(otpSendCmd, otpVerifyCmd)
}

func newClient() *server.Client {
	url := serverURL
	if url == "" {
		url = localURL(cfg.Server.Addr)
	}
	return server.NewClient(url, nil)
}

// localURL turns a listen address into a URL on this machine.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
