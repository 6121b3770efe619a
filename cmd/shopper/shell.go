package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"localshop/internal/client/cart"
	"localshop/internal/client/cartapi"
	"localshop/internal/client/cartsync"
	"localshop/internal/client/session"
)

type productSource interface {
	GetProduct(ctx context.Context, id string) (cartapi.Product, error)
}

// shell は1行1コマンドの端末UI
type shell struct {
	svc      *cartsync.Service
	auth     *session.Authenticator
	broker   *session.Broker
	products productSource
	out      io.Writer
}

const helpText = `commands:
  add <product_id>        add one unit
  rm <product_id>         remove the line
  qty <product_id> <n>    set quantity (0 removes)
  clear                   empty the cart
  show                    print the cart
  login <email> <pass>    sign in and sync
  logout                  sign out (cart stays on this device)
  flush                   upload pending changes now
  status                  session and sync state
  quit
`

var errQuit = errors.New("quit")

func (s *shell) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(s.out, "> ")
	for sc.Scan() {
		err := s.exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(s.out, "> ")
	}
	return sc.Err()
}

func (s *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	switch cmd, rest := strings.ToLower(args[0]), args[1:]; cmd {
	case "help", "?":
		fmt.Fprint(s.out, helpText)
	case "add":
		if len(rest) != 1 {
			return fmt.Errorf("usage: add <product_id>")
		}
		return s.add(ctx, rest[0])
	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm <product_id>")
		}
		s.svc.RemoveItem(rest[0])
		s.show()
	case "qty":
		if len(rest) != 2 {
			return fmt.Errorf("usage: qty <product_id> <n>")
		}
		n, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("quantity must be a number")
		}
		s.svc.UpdateQuantity(rest[0], n)
		s.show()
	case "clear":
		s.svc.ClearCart()
		s.show()
	case "show", "ls":
		s.show()
	case "login":
		if len(rest) != 2 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		sess, err := s.auth.SignIn(ctx, rest[0], rest[1])
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintf(s.out, "signed in as %s (sync: %s)\n", sess.Email, s.svc.SyncState())
		s.show()
	case "logout":
		s.auth.SignOut(ctx)
		fmt.Fprintln(s.out, "signed out")
	case "flush":
		if s.svc.FlushSync() {
			fmt.Fprintln(s.out, "uploaded")
		} else {
			fmt.Fprintln(s.out, "nothing to upload")
		}
	case "status":
		if sess, ok := s.broker.Current(); ok {
			fmt.Fprintf(s.out, "user: %s (id %d)\n", sess.Email, sess.UserID)
		} else {
			fmt.Fprintln(s.out, "user: guest")
		}
		fmt.Fprintf(s.out, "sync: %s\n", s.svc.SyncState())
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *shell) add(ctx context.Context, id string) error {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		var se *cartapi.StatusError
		if errors.As(err, &se) && se.Status == 404 {
			return fmt.Errorf("no such product %q", id)
		}
		return err
	}

	s.svc.AddItem(cart.Product{
		ID:    p.ID,
		Name:  p.Name,
		Image: p.Image,
		Price: p.Price.InexactFloat64(),
	})
	s.show()
	return nil
}

func (s *shell) show() {
	items := s.svc.Items()
	if len(items) == 0 {
		fmt.Fprintln(s.out, "(cart is empty)")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tQTY\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\n", it.ID, it.Name, it.Price, it.Quantity, it.Subtotal().StringFixed(2))
	}
	_ = w.Flush()
	fmt.Fprintf(s.out, "total: %.2f\n", s.svc.Total())
}
