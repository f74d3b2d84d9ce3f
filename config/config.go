package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	DBUrl          string
	TokenSecret    string
	TokenTTL       time.Duration
	Debug          bool
	DefinitionsURL string
	AdminUser      string
	AdminPassword  string
	PageSize       int
}

const (
	DefaultDefinitionsURL = "https://prooqr.github.io/prom"
	DefaultPageSize       = 15
)

func ParseFlags() (cfg Config, err error) {
	return Parse(flag.CommandLine, nil)
}

// Parse reads the configuration from args using fs; ParseFlags uses the
// process command line.
func Parse(fs *flag.FlagSet, args []string) (cfg Config, err error) {
	var host string
	fs.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	fs.UintVar(&port, "port", 80, "listen port number (default 80)")
	fs.StringVar(&cfg.DBUrl, "db-url", "prom.sqlite", "path to SQLite3 DB file, or mongodb:// URI (default prom.sqlite)")
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for token encryption and decryption")
	var ttl uint
	fs.UintVar(&ttl, "token-ttl", 120, "token TTL in seconds (default 120)")
	fs.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	fs.StringVar(&cfg.DefinitionsURL, "definitions-url", DefaultDefinitionsURL, "base URL of the published survey definitions")
	fs.StringVar(&cfg.AdminUser, "admin-user", "", "operator account to create or reset at startup")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "password of the -admin-user account")
	fs.IntVar(&cfg.PageSize, "page-size", DefaultPageSize, "items per page in listings (default 15)")

	if args == nil {
		args = os.Args[1:]
	}
	if err = fs.Parse(args); err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.DefinitionsURL = strings.TrimRight(cfg.DefinitionsURL, "/")

	switch {
	case cfg.TokenSecret == "":
		err = errors.New("missing parameter -token-secret")
	case cfg.AdminUser != "" && cfg.AdminPassword == "":
		err = errors.New("missing parameter -admin-password")
	case cfg.PageSize < 1:
		err = errors.New("-page-size must be positive")
	}

	return
}

// IsMongo reports whether DBUrl points at MongoDB rather than a SQLite file.
func (cfg Config) IsMongo() bool {
	return strings.HasPrefix(cfg.DBUrl, "mongodb://") || strings.HasPrefix(cfg.DBUrl, "mongodb+srv://")
}

// DefinitionURL is where the published definition of a survey variant can be
// downloaded from.
func (cfg Config) DefinitionURL(lang, code string) string {
	return cfg.DefinitionsURL + "/" + lang + "/" + code + ".html"
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
