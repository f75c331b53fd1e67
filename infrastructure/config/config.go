package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/jessevdk/go-flags"
	"github.com/kaspanet/netnode/app/appmessage"
	"github.com/kaspanet/netnode/util/network"
	"github.com/kaspanet/netnode/version"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename = "netnode.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultListenHost     = "0.0.0.0"
	defaultExternalIP     = "127.0.0.1"

	// DefaultLogFilename is the name of the log file inside the log directory
	DefaultLogFilename = "netnode.log"

	// DefaultErrLogFilename is the name of the error log file inside the log directory
	DefaultErrLogFilename = "netnode_err.log"

	// DefaultConnectTimeout is the timeout for establishing an outbound connection
	DefaultConnectTimeout = time.Second * 10

	// MinWorkers is the number of workers kept alive in the node's worker pool
	MinWorkers = 20

	// MaxWorkers is the maximum number of concurrent workers in the node's worker pool
	MaxWorkers = 50

	// WorkerIdleTimeout is how long a worker above MinWorkers may idle before exiting
	WorkerIdleTimeout = time.Second * 120
)

var (
	// DefaultAppDir is the default home directory for netnode.
	DefaultAppDir = appDataDir("netnode")

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// DialFunc establishes a network connection, giving up after timeout
type DialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)

// Flags defines the configuration options for netnode.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion    bool     `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile     string   `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir         string   `long:"logdir" description:"Directory to log output."`
	Port           uint16   `short:"p" long:"port" description:"Port to listen for connections on. Also the default port of --connect peers"`
	Listen         string   `long:"listen" description:"Interface to listen for connections on"`
	ExternalIP     string   `long:"externalip" description:"Host we claim to listen on to peers"`
	ConnectPeers   []string `long:"connect" description:"Connect to the specified peers at startup"`
	Proxy          string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string   `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	OnionProxy     string   `long:"onion" description:"Connect to tor hidden services via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	OnionProxyUser string   `long:"onionuser" description:"Username for onion proxy server"`
	OnionProxyPass string   `long:"onionpass" default-mask:"-" description:"Password for onion proxy server"`
	NoOnion        bool     `long:"noonion" description:"Disable connecting to tor hidden services"`
	TorIsolation   bool     `long:"torisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection."`
	Profile        string   `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	DebugLevel     string   `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
}

// Config defines the configuration options for netnode.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	*Flags
	ConnectPeerAddresses []appmessage.NodeAddress
	OnionDial            DialFunc
	Dial                 DialFunc
}

// ListenAddress returns the host:port the node listens on
func (cfg *Config) ListenAddress() string {
	return net.JoinHostPort(cfg.Listen, strconv.FormatUint(uint64(cfg.Port), 10))
}

// ExternalAddress returns the address the node advertises to its peers
func (cfg *Config) ExternalAddress() appmessage.NodeAddress {
	return appmessage.NewNodeAddress(cfg.ExternalIP, cfg.Port)
}

// DialFor returns the dial function suitable for the given peer address
func (cfg *Config) DialFor(address appmessage.NodeAddress) DialFunc {
	if address.IsOnion() {
		return cfg.OnionDial
	}
	return cfg.Dial
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile: defaultConfigFile,
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		Listen:     defaultListenHost,
		ExternalIP: defaultExternalIP,
	}
}

// DefaultConfig returns the default netnode configuration. The service port
// is left unset.
func DefaultConfig() *Config {
	cfg := &Config{Flags: defaultFlags()}
	cfg.Dial = net.DialTimeout
	cfg.OnionDial = cfg.Dial
	return cfg
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
func LoadConfig() (*Config, error) {
	cfg, _, err := loadConfig(os.Args[1:])
	return cfg, err
}

// loadConfig initializes and parses the config using a config file and the
// given command line arguments.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in netnode functioning properly with only a --port
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func loadConfig(args []string) (*Config, []string, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(cfgFlags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if ok := errors.As(err, &pathErr); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%s", configFileError)
	}

	return cfg, remainingArgs, nil
}

// resolve validates the parsed flags and derives the rest of the Config from them
func (cfg *Config) resolve() error {
	funcName := "loadConfig"

	if cfg.Port == 0 {
		return errors.Errorf("%s: the --port option is required", funcName)
	}

	if cfg.ExternalIP == "" {
		return errors.Errorf("%s: --externalip cannot be empty", funcName)
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return errors.Errorf("%s: The profile port must be between 1024 and 65535", funcName)
		}
	}

	var err error
	cfg.ConnectPeerAddresses, err = network.ParseNodeAddresses(cfg.ConnectPeers, cfg.Port)
	if err != nil {
		return errors.Wrapf(err, "%s: invalid --connect peer", funcName)
	}

	return cfg.resolveDialers(funcName)
}

// resolveDialers sets up the dial functions depending on the
// specified options. The default is to use the standard net.DialTimeout
// function. When a proxy is specified, the dial function is set to the
// proxy specific dial function.
func (cfg *Config) resolveDialers(funcName string) error {
	// --noonion and --onion do not mix.
	if cfg.NoOnion && cfg.OnionProxy != "" {
		return errors.Errorf("%s: the --noonion and --onion options may "+
			"not be activated at the same time", funcName)
	}

	// Tor stream isolation requires either proxy or onion proxy to be set.
	if cfg.TorIsolation && cfg.Proxy == "" && cfg.OnionProxy == "" {
		return errors.Errorf("%s: Tor stream isolation requires either proxy or "+
			"onionproxy to be set", funcName)
	}

	cfg.Dial = net.DialTimeout
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			return errors.Errorf("%s: Proxy address '%s' is invalid: %s", funcName, cfg.Proxy, err)
		}

		// Tor isolation flag means proxy credentials will be overridden
		// unless there is also an onion proxy configured in which case
		// that one will be overridden.
		torIsolation := false
		if cfg.TorIsolation && cfg.OnionProxy == "" &&
			(cfg.ProxyUser != "" || cfg.ProxyPass != "") {

			torIsolation = true
			fmt.Fprintln(os.Stderr, "Tor isolation set -- "+
				"overriding specified proxy user credentials")
		}

		proxy := &socks.Proxy{
			Addr:         cfg.Proxy,
			Username:     cfg.ProxyUser,
			Password:     cfg.ProxyPass,
			TorIsolation: torIsolation,
		}
		cfg.Dial = proxy.DialTimeout
	}

	// Setup onion address dial function depending on the specified options.
	// The default is to use the same dial function selected above. However,
	// when an onion-specific proxy is specified, the onion address dial
	// function is set to use the onion-specific proxy while leaving the
	// normal dial function as selected above. This allows .onion address
	// traffic to be routed through a different proxy than normal traffic.
	if cfg.OnionProxy != "" {
		_, _, err := net.SplitHostPort(cfg.OnionProxy)
		if err != nil {
			return errors.Errorf("%s: Onion proxy address '%s' is invalid: %s", funcName, cfg.OnionProxy, err)
		}

		// Tor isolation flag means onion proxy credentials will be
		// overridden.
		if cfg.TorIsolation &&
			(cfg.OnionProxyUser != "" || cfg.OnionProxyPass != "") {
			fmt.Fprintln(os.Stderr, "Tor isolation set -- "+
				"overriding specified onionproxy user "+
				"credentials ")
		}

		onionProxy := &socks.Proxy{
			Addr:         cfg.OnionProxy,
			Username:     cfg.OnionProxyUser,
			Password:     cfg.OnionProxyPass,
			TorIsolation: cfg.TorIsolation,
		}
		cfg.OnionDial = onionProxy.DialTimeout
	} else {
		cfg.OnionDial = cfg.Dial
	}

	// Specifying --noonion means the onion address dial function results in
	// an error.
	if cfg.NoOnion {
		cfg.OnionDial = func(_, _ string, _ time.Duration) (net.Conn, error) {
			return nil, errors.New("tor has been disabled")
		}
	}

	return nil
}
