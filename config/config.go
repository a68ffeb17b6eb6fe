package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/hdt3213/redict/lib/logger"
	"github.com/tailscale/hujson"
)

const DefaultConfPath = "redis.conf"

// Transports
const (
	TransportAe   = "ae"
	TransportGnet = "gnet"
)

// Properties holds global config properties
var Properties *ServerProperties

// ServerProperties defines global config properties
type ServerProperties struct {
	Bind       string `cfg:"bind"`
	Port       int    `cfg:"port"`
	Databases  int    `cfg:"databases"`
	MaxClients int    `cfg:"maxclients"`
	// Hz is the frequency of the maintenance cron
	Hz int `cfg:"hz"`
	// Timeout closes clients idle for more seconds, 0 disables it
	Timeout         int    `cfg:"timeout"`
	ActiveRehashing bool   `cfg:"activerehashing"`
	Dir             string `cfg:"dir"`
	RDBFilename     string `cfg:"dbfilename"`
	// Transport selects the network front end: ae or gnet
	Transport string `cfg:"transport"`
	LogDir    string `cfg:"logdir"`
	LogLevel  string `cfg:"loglevel"`

	// CfPath is the absolute path of the loaded config file
	CfPath string `cfg:"cf,omitempty"`
}

// Default returns the built-in configuration
func Default() *ServerProperties {
	return &ServerProperties{
		Bind:            "0.0.0.0",
		Port:            6399,
		Databases:       16,
		MaxClients:      1000,
		Hz:              10,
		ActiveRehashing: true,
		Dir:             ".",
		RDBFilename:     "dump.rdb",
		Transport:       TransportAe,
		LogDir:          "logs",
		LogLevel:        "info",
	}
}

func init() {
	Properties = Default()
}

// RDBPath returns the location of the snapshot file
func (p *ServerProperties) RDBPath() string {
	return filepath.Join(p.Dir, p.RDBFilename)
}

// Level maps LogLevel to a logger level
func (p *ServerProperties) Level() logger.LogLevel {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return logger.DEBUG
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// readConf reads the redis.conf style `key value` lines
func readConf(src io.Reader) (map[string]string, error) {
	rawMap := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		pivot := strings.IndexAny(line, " ")
		if pivot > 0 && pivot < len(line)-1 { // separator found
			key := line[0:pivot]
			value := strings.Trim(line[pivot+1:], " ")
			rawMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rawMap, nil
}

// readJSON reads a JSON object, comments and trailing commas are allowed
func readJSON(src io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	data, err = hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonc: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	rawMap := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			rawMap[strings.ToLower(k)] = val
		case float64:
			rawMap[strings.ToLower(k)] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			rawMap[strings.ToLower(k)] = fmt.Sprint(val)
		}
	}
	return rawMap, nil
}

// fill sets the fields of config found in rawMap
func fill(config *ServerProperties, rawMap map[string]string) {
	t := reflect.TypeOf(config)
	v := reflect.ValueOf(config)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok || strings.TrimSpace(key) == "" {
			key = field.Name
		} else {
			key = strings.Split(key, ",")[0]
		}
		value, ok := rawMap[strings.ToLower(key)]
		if ok {
			// fill config
			switch field.Type.Kind() {
			case reflect.String:
				fieldVal.SetString(value)
			case reflect.Int:
				intValue, err := strconv.ParseInt(value, 10, 64)
				if err == nil {
					fieldVal.SetInt(intValue)
				}
			case reflect.Bool:
				fieldVal.SetBool(toBool(value))
			case reflect.Slice:
				if field.Type.Elem().Kind() == reflect.String {
					slice := strings.Split(value, ",")
					fieldVal.Set(reflect.ValueOf(slice))
				}
			}
		}
	}
}

func parse(src io.Reader) *ServerProperties {
	rawMap, err := readConf(src)
	if err != nil {
		logger.Fatal(err)
	}
	config := Default()
	fill(config, rawMap)
	return config
}

// Load reads a config file, .json and .jsonc files are parsed as JSON with comments
func Load(configFilename string) (*ServerProperties, error) {
	file, err := os.Open(configFilename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var rawMap map[string]string
	switch strings.ToLower(filepath.Ext(configFilename)) {
	case ".json", ".jsonc":
		rawMap, err = readJSON(file)
	default:
		rawMap, err = readConf(file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFilename, err)
	}
	config := Default()
	fill(config, rawMap)
	if abs, err := filepath.Abs(configFilename); err == nil {
		config.CfPath = abs
	}
	return config, nil
}

// Setup read config file and store properties into Properties
func Setup(configFilename string) {
	if configFilename == "" {
		if !defaultConfigFileExists() {
			Properties = Default()
			return
		}
		configFilename = DefaultConfPath
	}
	config, err := Load(configFilename)
	if err != nil {
		panic(err)
	}
	Properties = config
}

func defaultConfigFileExists() bool {
	info, err := os.Stat(DefaultConfPath)
	return err == nil && !info.IsDir()
}

func toBool(s string) bool {
	ls := strings.ToLower(s)
	switch ls {
	case "true", "yes", "t", "y":
		return true
	default:
		return false
	}
}
