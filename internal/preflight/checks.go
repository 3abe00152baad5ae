package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"gamevault/internal/catalog"
	"gamevault/internal/services"
)

// catalogProbe fetches a single id so the check costs one request.
const catalogProbe = "fields id; limit 1;"

// CheckCatalog verifies that the catalog is reachable and the credentials
// are accepted. It makes one request without retries.
func CheckCatalog(ctx context.Context, conn catalog.Doer, timeout time.Duration) Result {
	const name = "Catalog"
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := conn.Do(checkCtx, catalog.EndpointGames, catalogProbe); err != nil {
		return Result{Name: name, Detail: summarizeCatalogError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeCatalogError produces a human-readable summary for catalog check failures.
func summarizeCatalogError(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "auth failed (check client_id and client_secret)"
	case errors.Is(err, services.ErrRateLimited):
		return "rate limited (lower catalog.qps)"
	case errors.Is(err, context.DeadlineExceeded):
		return "check timed out (catalog API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (catalog API unreachable)"
	}
	return err.Error()
}
