package main

import (
	"context"
	"flag"
	"time"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// adminFlags implements the flags of the commands using the admin service.
type adminFlags struct {
	addr    string
	timeout time.Duration
}

// register registers the flags on the flagset.
func (f *adminFlags) register(flagset *flag.FlagSet) {
	flagset.StringVar(&f.addr, "addr", corral.AdminDefaultAddress, "Address of the admin service")
	flagset.DurationVar(&f.timeout, "timeout", 5*time.Second, "Timeout of the request")
}

// call connects to the admin service and calls fn with a request context.
func (f *adminFlags) call(fn func(ctx context.Context, client *corral.AdminClient) error) error {
	conn, err := corral.DialAdmin(f.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	return fn(ctx, corral.NewAdminClient(conn))
}
