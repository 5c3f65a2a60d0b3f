package grpcsvc

import (
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Go-структуры API переносятся в dynamicpb по json-тегам: имя тега совпадает
// с именем поля в fulfillment_admin.proto.

func wireName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}

func wireField(md protoreflect.MessageDescriptor, f reflect.StructField) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName(protoreflect.Name(wireName(f)))
	if fd == nil {
		return nil, fmt.Errorf("%s has no field for %s", md.FullName(), f.Name)
	}
	return fd, nil
}

// toWire собирает protobuf-сообщение типа md из указателя на структуру.
func toWire(v any, md protoreflect.MessageDescriptor) (*dynamicpb.Message, error) {
	m := dynamicpb.NewMessage(md)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return m, nil
		}
		rv = rv.Elem()
	}
	if err := encodeStruct(m, rv); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeStruct(m protoreflect.Message, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		fd, err := wireField(m.Descriptor(), rt.Field(i))
		if err != nil {
			return err
		}
		fv := rv.Field(i)

		switch {
		case fd.IsList():
			items := m.Mutable(fd).List()
			for j := 0; j < fv.Len(); j++ {
				elem := items.NewElement()
				if err := encodeStruct(elem.Message(), fv.Index(j)); err != nil {
					return err
				}
				items.Append(elem)
			}
		case fd.Kind() == protoreflect.MessageKind:
			if err := encodeStruct(m.Mutable(fd).Message(), fv); err != nil {
				return err
			}
		default:
			val, err := scalarToWire(fd, fv)
			if err != nil {
				return err
			}
			m.Set(fd, val)
		}
	}
	return nil
}

func scalarToWire(fd protoreflect.FieldDescriptor, fv reflect.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(fv.String()), nil
	case protoreflect.Int32Kind:
		return protoreflect.ValueOfInt32(int32(fv.Int())), nil
	case protoreflect.Int64Kind:
		return protoreflect.ValueOfInt64(fv.Int()), nil
	case protoreflect.DoubleKind:
		return protoreflect.ValueOfFloat64(fv.Float()), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s for %s", fd.Kind(), fd.FullName())
	}
}

// fromWire заполняет структуру по указателю out полями сообщения m.
func fromWire(m protoreflect.Message, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode %s: target must be a non-nil pointer", m.Descriptor().FullName())
	}
	return decodeStruct(m, rv.Elem())
}

func decodeStruct(m protoreflect.Message, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		fd, err := wireField(m.Descriptor(), rt.Field(i))
		if err != nil {
			return err
		}
		fv := rv.Field(i)

		switch {
		case fd.IsList():
			items := m.Get(fd).List()
			slice := reflect.MakeSlice(fv.Type(), items.Len(), items.Len())
			for j := 0; j < items.Len(); j++ {
				if err := decodeStruct(items.Get(j).Message(), slice.Index(j)); err != nil {
					return err
				}
			}
			fv.Set(slice)
		case fd.Kind() == protoreflect.MessageKind:
			if err := decodeStruct(m.Get(fd).Message(), fv); err != nil {
				return err
			}
		default:
			val := m.Get(fd)
			switch fd.Kind() {
			case protoreflect.StringKind:
				fv.SetString(val.String())
			case protoreflect.Int32Kind, protoreflect.Int64Kind:
				fv.SetInt(val.Int())
			case protoreflect.DoubleKind:
				fv.SetFloat(val.Float())
			default:
				return fmt.Errorf("unsupported field kind %s for %s", fd.Kind(), fd.FullName())
			}
		}
	}
	return nil
}
