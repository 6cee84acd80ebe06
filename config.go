// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/hexstody/hexstody-btc/internal/cfgutil"
	"github.com/hexstody/hexstody-btc/ledger/kvstore"
	"github.com/hexstody/hexstody-btc/ledger/sqlstore"
	"github.com/hexstody/hexstody-btc/netparams"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/hexstody/hexstody-btc/scanner"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "hexstody-btc.conf"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "hexstody-btc.log"
	defaultDomain          = "http://localhost:8180"
	defaultMaxClients      = 64
	defaultPollTimeout     = 30 * time.Second
	defaultDBTimeout       = 60 * time.Second
	defaultStoreTimeout    = 10 * time.Second
	defaultZMQReadDeadline = 5 * time.Second
	defaultZMQBlockPort    = "28332"
	defaultZMQTxPort       = "28333"
	defaultMinConfirms     = 2
	defaultUnderLimit      = btcutil.Amount(100_000)

	// Ledger backends.
	backendBDB      = "bdb"
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"

	sqliteDBName = "ledger.sqlite"
)

var (
	hexstodyHomeDir    = btcutil.AppDataDir("hexstody-btc", false)
	defaultConfigFile  = filepath.Join(hexstodyHomeDir, defaultConfigFilename)
	defaultDataDir     = hexstodyHomeDir
	defaultLogDir      = filepath.Join(hexstodyHomeDir, defaultLogDirname)
	defaultLedgerStore = backendBDB
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     *cfgutil.ExplicitString `short:"A" long:"datadir" description:"Directory to store the ledger"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	TestNet3    bool                    `long:"testnet" description:"Use the test Bitcoin network (version 3) (default mainnet)"`
	RegTest     bool                    `long:"regtest" description:"Use the regression test network"`
	SigNet      bool                    `long:"signet" description:"Use the signet test network"`

	// Node options
	RPCConnect  string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the bitcoind RPC server (default localhost:8332, testnet: localhost:18332, regtest: localhost:18443, signet: localhost:38332)"`
	NodeUser    string `long:"nodeuser" description:"Username for bitcoind RPC authentication"`
	NodePass    string `long:"nodepass" default-mask:"-" description:"Password for bitcoind RPC authentication"`
	NodeWallet  string `long:"nodewallet" description:"Name of the bitcoind wallet holding the hot wallet keys"`
	ZMQBlockURL string `long:"zmqpubhashblock" description:"bitcoind ZMQ hashblock endpoint used to wake the deposit scanner (eg. tcp://127.0.0.1:28332)"`
	ZMQTxURL    string `long:"zmqpubhashtx" description:"bitcoind ZMQ hashtx endpoint used to wake the deposit scanner"`

	// Ledger options
	LedgerStore  string                  `long:"ledger" description:"Ledger storage backend {bdb, postgres, sqlite}"`
	DBConnect    *cfgutil.ExplicitString `long:"dbconnect" description:"Connection string of the postgres or sqlite ledger (default sqlite: <datadir>/<net>/ledger.sqlite)"`
	DBTimeout    time.Duration           `long:"dbtimeout" description:"Timeout for opening the bdb ledger"`
	StoreTimeout time.Duration           `long:"storetimeout" description:"Timeout of a single ledger write"`

	// Deposit scanner options
	PollInterval       time.Duration `long:"pollinterval" description:"Time between two deposit scans"`
	PollTimeout        time.Duration `long:"polltimeout" description:"Time an /events long poll waits for deposit events"`
	ConfirmationsLimit int64         `long:"confirmations" description:"Depth after which a deposit is no longer reported"`

	// Withdrawal options
	OperatorKeys []string            `long:"operatorkey" description:"Base64 encoded operator public key (P-256 SPKI DER or secp256k1); may be repeated"`
	MinConfirms  int                 `long:"minconfirmations" description:"Required margin of operator confirmations over rejections"`
	Domain       string              `long:"domain" description:"Public origin of the operator API that signatures are bound to"`
	UnderLimit   *cfgutil.AmountFlag `long:"underlimit" description:"Largest withdrawal paid without an operator quorum (BTC, or satoshis with a sat suffix)"`

	// Server options
	Listeners  []string `long:"listen" description:"Listen for API connections on this interface/port (default port: 8180, testnet: 18180, regtest: 18181, signet: 38180)"`
	MaxClients int64    `long:"maxclients" description:"Max number of concurrent API requests"`

	// Parsed values.
	operatorKeys *quorum.KeySet
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(hexstodyHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// networkDir returns the directory name of a network directory to hold the
// ledger for the given network.
func networkDir(dataDir string, params *netparams.Params) string {
	netname := params.Name

	// For now, we must always name the testnet data directory as "testnet"
	// and not "testnet3" or any other version, as the chaincfg testnet3
	// paramaters will likely be switched to being named "testnet3" in the
	// future.  This is done to future proof that change, and an upgrade
	// plan to move the testnet3 data directory can be worked out later.
	if params.Params == netparams.TestNet3Params.Params {
		netname = "testnet"
	}

	return filepath.Join(dataDir, netname)
}

// parseOperatorKeys decodes the configured operator keys.
func parseOperatorKeys(encoded []string) (*quorum.KeySet, error) {
	keys := make([]*quorum.PublicKey, 0, len(encoded))
	for _, s := range encoded {
		key, err := quorum.ParsePublicKeyBase64(s)
		if err != nil {
			return nil, fmt.Errorf("operator key %q: %w", s, err)
		}
		keys = append(keys, key)
	}

	return quorum.NewKeySet(keys...), nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in hexstody-btc functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel:         defaultLogLevel,
		ConfigFile:         cfgutil.NewExplicitString(defaultConfigFile),
		DataDir:            cfgutil.NewExplicitString(defaultDataDir),
		LogDir:             defaultLogDir,
		LedgerStore:        defaultLedgerStore,
		DBConnect:          cfgutil.NewExplicitString(""),
		DBTimeout:          defaultDBTimeout,
		StoreTimeout:       defaultStoreTimeout,
		PollInterval:       scanner.DefaultPollInterval,
		PollTimeout:        defaultPollTimeout,
		ConfirmationsLimit: scanner.DefaultConfirmationsLimit,
		MinConfirms:        defaultMinConfirms,
		Domain:             defaultDomain,
		UnderLimit:         cfgutil.NewAmountFlag(defaultUnderLimit),
		MaxClients:         defaultMaxClients,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// If a config file is not explicitly set but a data directory is,
	// look for the config file inside the data directory.
	configFilePath := preCfg.ConfigFile.Value
	if !preCfg.ConfigFile.ExplicitlySet() && preCfg.DataDir.ExplicitlySet() {
		configFilePath = filepath.Join(
			preCfg.DataDir.Value, defaultConfigFilename,
		)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFilePath = cleanAndExpandPath(configFilePath)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet3 {
		activeNet = &netparams.TestNet3Params
		numNets++
	}
	if cfg.RegTest {
		activeNet = &netparams.RegressionNetParams
		numNets++
	}
	if cfg.SigNet {
		activeNet = &netparams.SigNetParams
		numNets++
	}
	if numNets > 1 {
		str := "%s: The testnet, regtest and signet params can't be " +
			"used together -- choose one"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	cfg.DataDir.Value = cleanAndExpandPath(cfg.DataDir.Value)
	netDir := networkDir(cfg.DataDir.Value, activeNet)
	if err := cfgutil.EnsureDir(netDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Validate the ledger backend and pick its default location.
	switch cfg.LedgerStore {
	case backendBDB:
		if cfg.DBConnect.ExplicitlySet() {
			str := "%s: --dbconnect is not used by the bdb ledger, " +
				"which is stored in the data directory"
			err := fmt.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		cfg.DBConnect.Value = filepath.Join(netDir, kvstore.DBName)

	case backendSQLite:
		if !cfg.DBConnect.ExplicitlySet() {
			cfg.DBConnect.Value = filepath.Join(netDir, sqliteDBName)
		}

	case backendPostgres:
		if !cfg.DBConnect.ExplicitlySet() {
			str := "%s: the postgres ledger requires --dbconnect"
			err := fmt.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}

	default:
		str := "%s: unknown ledger backend %q -- supported backends " +
			"{%s, %s, %s}"
		err := fmt.Errorf(str, funcName, cfg.LedgerStore, backendBDB,
			backendPostgres, backendSQLite)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.LedgerStore != backendBDB {
		if _, err := sqlstore.ParseDialect(cfg.LedgerStore); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Operator keys and the quorum they form.
	cfg.operatorKeys, err = parseOperatorKeys(cfg.OperatorKeys)
	if err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.operatorKeys.Len() == 0 {
		log.Warnf("No operator keys configured -- only withdrawals " +
			"under the limit can be paid")
	}
	if cfg.MinConfirms < 1 {
		str := "%s: --minconfirmations must be at least 1"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.operatorKeys.Len() > 0 && cfg.MinConfirms > cfg.operatorKeys.Len() {
		str := "%s: --minconfirmations %d can never be reached by %d " +
			"operator keys"
		err := fmt.Errorf(str, funcName, cfg.MinConfirms,
			cfg.operatorKeys.Len())
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	cfg.Domain = strings.TrimSuffix(cfg.Domain, "/")

	if cfg.ConfirmationsLimit < 1 {
		str := "%s: --confirmations must be at least 1"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.UnderLimit.Amount < 0 {
		str := "%s: --underlimit may not be negative"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = net.JoinHostPort("localhost", activeNet.NodeRPCPort)
	}

	// Add default port to connect flag if missing.
	cfg.RPCConnect, err = cfgutil.NormalizeAddress(
		cfg.RPCConnect, activeNet.NodeRPCPort,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid rpcconnect network address: %v\n", err)
		return nil, nil, err
	}

	if cfg.ZMQTxURL != "" && cfg.ZMQBlockURL == "" {
		str := "%s: --zmqpubhashtx requires --zmqpubhashblock"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if cfg.ZMQBlockURL != "" {
		cfg.ZMQBlockURL, err = cfgutil.NormalizeZMQEndpoint(
			cfg.ZMQBlockURL, defaultZMQBlockPort,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr,
				"Invalid zmqpubhashblock endpoint: %v\n", err)
			return nil, nil, err
		}
	}
	if cfg.ZMQTxURL != "" {
		cfg.ZMQTxURL, err = cfgutil.NormalizeZMQEndpoint(
			cfg.ZMQTxURL, defaultZMQTxPort,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr,
				"Invalid zmqpubhashtx endpoint: %v\n", err)
			return nil, nil, err
		}
	}

	if len(cfg.Listeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil {
			return nil, nil, err
		}
		cfg.Listeners = make([]string, 0, len(addrs))
		for _, addr := range addrs {
			addr = net.JoinHostPort(addr, activeNet.ServicePort)
			cfg.Listeners = append(cfg.Listeners, addr)
		}
	}

	// Add default port to all listener addresses if needed and remove
	// duplicate addresses.
	cfg.Listeners, err = cfgutil.NormalizeAddresses(
		cfg.Listeners, activeNet.ServicePort,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid network address in API listeners: %v\n", err)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
