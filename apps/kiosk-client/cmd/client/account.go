package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/session"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const (
	tabMinWidth = 0
	tabWidth    = 8
	tabPadding  = 2
)

var (
	faceImage   string
	faceSession string
	regName     string
	regPhone    string
	regBirthday string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a face photo",
	Long: `Login sends a JPEG of the customer's face to the backend. On success it
prints the session id to continue with: kiosk run --session-id <id>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := dataURL(faceImage)
		if err != nil {
			return err
		}
		sessionID := sessionOrNew(faceSession)
		user, err := newAPIClient().FaceLogin(cmd.Context(), wire.FaceLoginRequest{Image: image, SessionID: sessionID})
		if err != nil {
			return fmt.Errorf("face login failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome back, %s!\nsession: %s\n", user.Name, sessionID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new customer with a face photo",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := dataURL(faceImage)
		if err != nil {
			return err
		}
		sessionID := sessionOrNew(faceSession)
		user, err := newAPIClient().FaceRegister(cmd.Context(), wire.FaceRegisterRequest{
			Name:      regName,
			Phone:     regPhone,
			Birthday:  regBirthday,
			Image:     image,
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! Registration complete\nuser: %s\nsession: %s\n", user.Name, user.ID, sessionID)
		return nil
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <session-id>",
	Short: "Check out the cart of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAPIClient().Checkout(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("checkout failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkout complete\ntransaction: %s\ntotal: %.2f\n", resp.TransactionID, resp.TotalAmount)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show a customer's purchase history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAPIClient().UserTransactions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTransactions(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&faceImage, "image", "i", "", "JPEG file with the customer's face")
		c.Flags().StringVar(&faceSession, "session-id", "", "session to log in (default: a new session)")
		_ = c.MarkFlagRequired("image")
	}
	registerCmd.Flags().StringVar(&regName, "name", "", "customer name")
	registerCmd.Flags().StringVar(&regPhone, "phone", "", "customer phone number")
	registerCmd.Flags().StringVar(&regBirthday, "birthday", "", "birthday as YYYY-MM-DD")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("phone")

	rootCmd.AddCommand(loginCmd, registerCmd, checkoutCmd, historyCmd)
}

func sessionOrNew(id string) string {
	if id != "" {
		return id
	}
	return session.NewID()
}

// dataURL reads a JPEG file into the data URL form the face endpoints take.
func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func printTransactions(out io.Writer, resp *wire.TransactionsResponse) {
	fmt.Fprintf(out, "%d purchases, total spent %.2f\n", resp.TotalTransactions, resp.TotalSpent)
	if len(resp.Transactions) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, tabMinWidth, tabWidth, tabPadding, ' ', 0)
	fmt.Fprintln(w, "DATE\tTRANSACTION\tITEMS\tTOTAL")
	for _, t := range resp.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", t.Date, t.ID, t.TotalQuantity, t.TotalAmount)
	}
	w.Flush()
}
