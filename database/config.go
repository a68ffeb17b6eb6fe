package database

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/wildcard"
	"github.com/hdt3213/redict/redis/protocol"
)

// mutableConfigs may be changed by CONFIG SET at runtime
var mutableConfigs = map[string]func(value string) bool{
	"hz":              positiveInt,
	"timeout":         nonNegativeInt,
	"maxclients":      positiveInt,
	"activerehashing": func(string) bool { return true },
	"dbfilename":      func(v string) bool { return v != "" && !strings.ContainsAny(v, "/\\") },
}

func positiveInt(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n > 0
}

func nonNegativeInt(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n >= 0
}

func execConfig(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	subCommand := strings.ToUpper(string(args[0]))
	switch subCommand {
	case "GET":
		if len(args) < 2 {
			return protocol.MakeErrReply("ERR wrong number of arguments for 'config|get' command")
		}
		return server.getConfig(args[1:])
	case "SET":
		if len(args) < 3 {
			return protocol.MakeErrReply("ERR wrong number of arguments for 'config|set' command")
		}
		return server.setConfig(args[1:])
	case "RESETSTAT":
		server.resetStats()
		return &protocol.OkReply{}
	default:
		return protocol.MakeErrReply(fmt.Sprintf("ERR Unknown subcommand or wrong number of arguments for '%s'", subCommand))
	}
}

func (server *Server) getConfig(args [][]byte) redis.Reply {
	result := make([][]byte, 0)
	propertiesMap := getPropertiesMap(server.props)
	keys := make([]string, 0, len(propertiesMap))
	for key := range propertiesMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, arg := range args {
		pattern := wildcard.CompilePattern(strings.ToLower(string(arg)))
		for _, key := range keys {
			if pattern.IsMatch(key) {
				result = append(result, []byte(key), []byte(propertiesMap[key]))
			}
		}
	}
	return protocol.MakeMultiBulkReply(result)
}

func cfgKey(field reflect.StructField) string {
	key, ok := field.Tag.Lookup("cfg")
	if !ok || strings.TrimSpace(key) == "" {
		return strings.ToLower(field.Name)
	}
	return strings.Split(key, ",")[0]
}

func getPropertiesMap(props *config.ServerProperties) map[string]string {
	propertiesMap := map[string]string{}
	t := reflect.TypeOf(props)
	v := reflect.ValueOf(props)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		key := cfgKey(field)
		var value string
		switch fieldVal.Type().Kind() {
		case reflect.String:
			value = fieldVal.String()
		case reflect.Int:
			value = strconv.Itoa(int(fieldVal.Int()))
		case reflect.Bool:
			if fieldVal.Bool() {
				value = "yes"
			} else {
				value = "no"
			}
		default:
			continue
		}
		propertiesMap[key] = value
	}
	return propertiesMap
}

// setConfig validates every pair before applying any of them
func (server *Server) setConfig(args [][]byte) redis.Reply {
	if len(args)%2 != 0 {
		return protocol.MakeErrReply("ERR wrong number of arguments for 'config|set' command")
	}
	updateMap := make(map[string]string)
	for i := 0; i < len(args); i += 2 {
		parameter := strings.ToLower(string(args[i]))
		value := string(args[i+1])
		if _, ok := updateMap[parameter]; ok {
			return protocol.MakeErrReply(fmt.Sprintf("ERR CONFIG SET failed (possibly related to argument '%s') - duplicate parameter", parameter))
		}
		validate, ok := mutableConfigs[parameter]
		if !ok {
			if _, known := getPropertiesMap(server.props)[parameter]; known {
				return protocol.MakeErrReply(fmt.Sprintf("ERR CONFIG SET failed (possibly related to argument '%s') - can't set immutable config", parameter))
			}
			return protocol.MakeErrReply(fmt.Sprintf("ERR Unknown option or number of arguments for CONFIG SET - '%s'", parameter))
		}
		if !validate(value) {
			return protocol.MakeErrReply(fmt.Sprintf("ERR CONFIG SET failed (possibly related to argument '%s') - argument must be a valid value", parameter))
		}
		updateMap[parameter] = value
	}
	for parameter, value := range updateMap {
		if errReply := updateConfig(server.props, parameter, value); errReply != nil {
			return errReply
		}
	}
	return &protocol.OkReply{}
}

func updateConfig(properties *config.ServerProperties, parameter string, value string) redis.Reply {
	t := reflect.TypeOf(properties)
	v := reflect.ValueOf(properties)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		if cfgKey(field) != parameter {
			continue
		}
		switch fieldVal.Type().Kind() {
		case reflect.String:
			fieldVal.SetString(value)
		case reflect.Int:
			intValue, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return protocol.MakeErrReply(fmt.Sprintf("ERR CONFIG SET failed (possibly related to argument '%s') - argument couldn't be parsed into an integer", parameter))
			}
			fieldVal.SetInt(intValue)
		case reflect.Bool:
			if value == "yes" {
				fieldVal.SetBool(true)
			} else if value == "no" {
				fieldVal.SetBool(false)
			} else {
				return protocol.MakeErrReply(fmt.Sprintf("ERR CONFIG SET failed (possibly related to argument '%s') - argument couldn't be parsed into a bool", parameter))
			}
		}
		return nil
	}
	return protocol.MakeErrReply(fmt.Sprintf("ERR Unknown option or number of arguments for CONFIG SET - '%s'", parameter))
}

// resetStats clears the counters reported by INFO stats
func (server *Server) resetStats() {
	server.stat = serverStats{}
	for _, db := range server.dbSet {
		db.expiredKeys = 0
		db.hits = 0
		db.misses = 0
	}
}

func init() {
	registerSysCommand("Config", execConfig, -2, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
}
