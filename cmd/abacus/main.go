package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uvensys/abacus"
	"github.com/uvensys/abacus/internal"
	libabacus "github.com/uvensys/abacus/lib"
)

var (
	bind               = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork        = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	healthcheck        = flag.Bool("healthcheck", false, "run a health check against abacus")
	jwtSecret          = flag.String("jwt-secret", "", "if set, users are identified by the sub claim of an HMAC signed bearer token using this secret")
	jwtSecretFile      = flag.String("jwt-secret-file", "", "file name containing value for jwt-secret")
	metricsBind        = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	policyFname        = flag.String("policy-fname", "", "full path to abacus policy document (defaults to a sensible built-in policy)")
	printPolicy        = flag.Bool("print-policy", false, "print the effective policy as YAML and exit")
	slogLevel          = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	socketMode         = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets.")
	userHeader         = flag.String("user-header", abacus.DefaultUserHeader, "trusted request header carrying the user ID when jwt-secret is not set")
	versionFlag        = flag.Bool("version", false, "print abacus version")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// parseBindNetFromAddr determine bind network and address based on the given network and address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :4259
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatal(fmt.Errorf("could not parse socket mode %s: %w", *socketMode, err))
		}

		if err := os.Chmod(address, os.FileMode(mode)); err != nil {
			if err := listener.Close(); err != nil {
				log.Printf("failed to close listener: %v", err)
			}
			log.Fatal(fmt.Errorf("could not change socket mode: %w", err))
		}
	}

	return listener, formattedAddress
}

func loadJWTSecret() ([]byte, error) {
	switch {
	case *jwtSecret != "" && *jwtSecretFile != "":
		return nil, errors.New("do not specify both JWT_SECRET and JWT_SECRET_FILE")
	case *jwtSecret != "":
		return []byte(*jwtSecret), nil
	case *jwtSecretFile != "":
		data, err := os.ReadFile(*jwtSecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT_SECRET_FILE %s: %w", *jwtSecretFile, err)
		}

		secret := bytes.TrimSpace(data)
		if len(secret) == 0 {
			return nil, fmt.Errorf("JWT_SECRET_FILE %s is empty", *jwtSecretFile)
		}
		return secret, nil
	default:
		return nil, nil
	}
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("abacus", abacus.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	// install signal handler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := libabacus.LoadPoliciesOrDefault(ctx, *policyFname)
	if err != nil {
		log.Fatalf("can't parse policy file: %v", err)
	}

	if *printPolicy {
		doc, err := policy.Original().Document()
		if err != nil {
			log.Fatalf("can't render policy: %v", err)
		}
		os.Stdout.Write(doc)
		return
	}

	secret, err := loadJWTSecret()
	if err != nil {
		log.Fatal(err)
	}

	if secret == nil {
		slog.Warn("JWT_SECRET is not set, trusting the user header as is; make sure only your auth proxy can set it", "header", *userHeader)
	}

	s, err := libabacus.New(libabacus.Options{
		Policy:     policy,
		UserHeader: *userHeader,
		JWTSecret:  secret,
	})
	if err != nil {
		log.Fatalf("can't construct libabacus.Server: %v", err)
	}

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	srv := http.Server{Handler: s, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"version", abacus.Version,
		"daily-limit", policy.DailyLimit,
		"cooldown", policy.Cooldown,
		"challenge-ttl", policy.ChallengeTTL,
		"timezone", policy.Location.String(),
		"store", policy.Original().Store.Backend,
		"jwt", secret != nil,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
