// Command mpinclient-demo drives register -> authenticate -> sign against
// a fake transport/crypto pair, an operator-facing walkthrough atop the
// same Client the HTTP-facing code would use, fixed rather than
// subcommand-driven since this module has no tenant/database state to
// inspect or repair.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"

	mpinclient "github.com/mpin-labs/mpinclient"
	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/transport/transporttest"
	"github.com/mpin-labs/mpinclient/internal/userstore"
)

func main() {
	userID := flag.String("user", "demo-user", "user id to register and authenticate")
	pinCode := flag.String("pin", "1234", "pin to use for every step")
	flag.Parse()

	ft := transporttest.New()
	seedRoutes(ft, *pinCode)

	ctx := context.Background()
	c, err := mpinclient.New(ctx, mpinclient.Config{
		ProjectID:  "demo-project",
		DeviceName: "mpinclient-demo",
		UserStore:  userstore.NewMemoryStore(),
		Transport:  ft,
	})
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}

	provider := fixedPin(*pinCode)

	rec, err := c.Register(ctx, *userID, "demo-activation-token", provider)
	if err != nil {
		log.Fatalf("register failed: %v", err)
	}
	fmt.Printf("registered %s (mpinId=%x, pinLength=%d)\n", rec.UserID, rec.MpinID, rec.PinLength)

	res, err := c.Authenticate(ctx, *userID, authentication.ScopeJWT, "", provider)
	if err != nil {
		log.Fatalf("authenticate failed: %v", err)
	}
	fmt.Printf("authenticated, status=%d jwt=%s\n", res.Status, res.JWT)

	sig, err := c.Sign(ctx, *userID, []byte("demo message"), provider, nil)
	if err != nil {
		log.Fatalf("sign failed: %v", err)
	}
	out, _ := json.MarshalIndent(sig, "", "  ")
	fmt.Println(string(out))

	slog.Info("demo_complete", "user_id", *userID)
}

func fixedPin(digits string) pin.Provider {
	return func(_ context.Context, consume func(string)) error {
		consume(digits)
		return nil
	}
}

// seedRoutes scripts the fake platform's responses for the register,
// authenticate and sign sequence so the demo runs with no live M-Pin
// platform, the same mocked-transport posture the component test suites use.
func seedRoutes(ft *transporttest.Fake, userPin string) {
	ft.OnJSON("/rps/v2/user", map[string]any{
		"mpinId":       "aabbcc",
		"regOTT":       "regott-1",
		"dtas":         "demo-dtas",
		"pinLength":    len(userPin),
		"signatureUrl": "/rps/v2/signature/aabbcc",
	})
	ft.OnJSON("/rps/v2/signature/aabbcc", map[string]any{
		"clientSecretShareURL":    "/rps/v2/share1/aabbcc",
		"dvsClientSecretShareURL": "/rps/v2/share2/aabbcc",
	})
	ft.OnJSON("/rps/v2/share1/aabbcc", map[string]any{"clientSecretShare": "01020304"})
	ft.OnJSON("/rps/v2/dvsregister", map[string]any{
		"dvsClientSecretShareURL": "/rps/v2/share2/aabbcc",
		"mpinId":                  "aabbcc",
		"dtas":                    "demo-dtas",
	})
	ft.OnJSON("/rps/v2/share2/aabbcc", map[string]any{"clientSecretShare": "05060708"})

	// Queued twice: once for the explicit Authenticate call below, once
	// for the dvs-auth pass Sign runs internally before signing.
	for i := 0; i < 2; i++ {
		ft.OnJSON("/rps/v2/pass1", map[string]any{"Y": "010203"})
		ft.OnJSON("/rps/v2/pass2", map[string]any{"authOTT": "ott-1"})
		ft.OnJSON("/rps/v2/authenticate", map[string]any{"status": 200, "jwt": "demo-jwt"})
	}
}
