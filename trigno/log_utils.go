// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"log/slog"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
)

// Payloads longer than this are logged by size only; frame payloads can carry
// thousands of samples.
const maxLoggedPayload = 128

// Format packet fields that are not logged under their snake-cased name and
// value. Reports false for fields that need no special handling.
func packetField(name string, val reflect.Value) ([]slog.Attr, bool) {
	switch name {
	case "Password":
		return []slog.Attr{slog.String("password", "<redacted>")}, true

	case "QoS":
		return []slog.Attr{slog.Any("qos", val.Interface())}, true

	case "Payload":
		if val.Kind() != reflect.Slice || val.Type().Elem().Kind() != reflect.Uint8 {
			return nil, false
		}
		b := val.Bytes()
		if len(b) > maxLoggedPayload || !utf8.Valid(b) {
			return []slog.Attr{slog.Int("payload_bytes", len(b))}, true
		}
		return []slog.Attr{slog.String("payload", string(b))}, true

	// Paho nests properties; they read better inline.
	case "Properties":
		return structAttrs(val), true

	case "Subscriptions":
		subs, ok := val.Interface().([]paho.SubscribeOptions)
		if !ok {
			return nil, false
		}
		if len(subs) == 1 {
			return structAttrs(reflect.ValueOf(subs[0])), true
		}
		group := make([]any, len(subs))
		for i, sub := range subs {
			group[i] = slog.Attr{
				Key:   strconv.Itoa(i),
				Value: slog.GroupValue(structAttrs(reflect.ValueOf(sub))...),
			}
		}
		return []slog.Attr{slog.Group("subscriptions", group...)}, true
	}
	return nil, false
}

// Log an MQTT packet at debug level, one attribute per populated field.
func (l *logger) packet(ctx context.Context, name string, packet any) {
	// Reflection is only worth paying for if the record will be written.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := indirect(reflect.ValueOf(packet))
	if val.Kind() != reflect.Struct {
		return
	}
	l.Log(ctx, slog.LevelDebug, name, structAttrs(val)...)
}

func structAttrs(val reflect.Value) []slog.Attr {
	val = indirect(val)
	if val.Kind() != reflect.Struct {
		return nil
	}

	var attrs []slog.Attr
	typ := val.Type()
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		fv := indirect(val.Field(i))
		if !fv.IsValid() || fv.IsZero() {
			continue
		}

		if as, ok := packetField(f.Name, fv); ok {
			attrs = append(attrs, as...)
		} else {
			attrs = append(attrs, fieldAttr(strcase.ToSnake(f.Name), fv)...)
		}
	}
	return attrs
}

func fieldAttr(key string, val reflect.Value) []slog.Attr {
	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.String(key, string(v))}

	case paho.UserProperties:
		group := make([]any, len(v))
		for i, p := range v {
			group[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(key, group...)}
	}

	if val.Kind() == reflect.Struct {
		nested := structAttrs(val)
		if len(nested) == 0 {
			return nil
		}
		return []slog.Attr{{Key: key, Value: slog.GroupValue(nested...)}}
	}
	return []slog.Attr{slog.Any(key, val.Interface())}
}

func indirect(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		val = val.Elem()
	}
	return val
}
