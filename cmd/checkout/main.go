// Command checkout drives one end-to-end checkout against a running
// checkout-service: create the order, wait for the STK push to resolve, and
// print either the confirmation or the manual-payment fallback instructions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkout-service/internal/poller"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8080", "checkout service base URL")
		listingID    = flag.Int64("listing", 0, "listing id")
		ticketTypeID = flag.Int64("ticket-type", 0, "ticket type id")
		quantity     = flag.Int("quantity", 1, "number of tickets")
		name         = flag.String("name", "", "buyer name")
		email        = flag.String("email", "", "buyer email")
		phone        = flag.String("phone", "", "buyer phone (2547XXXXXXXX)")
		promoCode    = flag.String("promo", "", "optional promocode")
		shortCode    = flag.String("shortcode", "174379", "merchant pay bill number for fallback instructions")
		retryLimit   = flag.Int("retries", 2, "automated payment retry budget")
		interval     = flag.Duration("poll-interval", poller.DefaultPollInterval, "status poll interval")
	)
	flag.Parse()

	if *listingID == 0 || *ticketTypeID == 0 {
		log.Fatal("both -listing and -ticket-type are required")
	}

	if err := util.InitLogger("development"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := poller.NewHTTPClient(*baseURL, 30*time.Second)
	flow := poller.NewFlow(client, poller.NewPoller(client, *interval), *retryLimit, *shortCode)

	stdin := bufio.NewReader(os.Stdin)
	flow.ConfirmRetry = func(failReason string, retryCount int) bool {
		fmt.Printf("\nPayment failed: %s (attempt %d)\nRetry? [y/N]: ", failReason, retryCount+1)
		answer, _ := stdin.ReadString('\n')
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
	}
	flow.OnStateChange = func(state poller.State) {
		fmt.Printf("-> %s\n", state)
	}

	req := &service.CheckoutRequest{
		ListingID:  *listingID,
		BuyerName:  *name,
		BuyerEmail: *email,
		BuyerPhone: *phone,
		PromoCode:  *promoCode,
		Items: []service.CheckoutItemRequest{
			{TicketTypeID: *ticketTypeID, Quantity: *quantity},
		},
	}

	outcome, err := flow.Run(ctx, req, 0)
	if err != nil {
		log.Fatalf("Checkout aborted: %v", err)
	}

	switch outcome.State {
	case poller.StateSuccess:
		fmt.Printf("\nPayment confirmed. Order #%d, transaction #%d.\n", outcome.OrderID, outcome.TransactionID)
	default:
		fmt.Printf("\nPayment not completed: %s\n", outcome.FailReason)
		if outcome.Fallback != nil {
			fmt.Println(outcome.Fallback.String())
		}
		os.Exit(1)
	}
}
