package grpcsvc

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ProtoFile: путь схемы в реестре protobuf, по нему её находит gRPC reflection.
const ProtoFile = "storefront/v1/fulfillment_admin.proto"

const protoPackage = "storefront.v1"

// adminFile: схема FulfillmentAdmin, собранная без protoc и зарегистрированная
// в protoregistry.GlobalFiles.
var adminFile = registerAdminFile()

type fieldSpec struct {
	name     string
	kind     descriptorpb.FieldDescriptorProto_Type
	message  string
	repeated bool
}

func str(name string) fieldSpec {
	return fieldSpec{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_STRING}
}

func i32(name string) fieldSpec {
	return fieldSpec{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_INT32}
}

func i64(name string) fieldSpec {
	return fieldSpec{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_INT64}
}

func float(name string) fieldSpec {
	return fieldSpec{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE}
}

func msg(name, message string) fieldSpec {
	return fieldSpec{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, message: message}
}

func list(name, message string) fieldSpec {
	f := msg(name, message)
	f.repeated = true
	return f
}

func message(name string, fields ...fieldSpec) *descriptorpb.DescriptorProto {
	out := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for i, f := range fields {
		label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		if f.repeated {
			label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
		}
		field := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.name),
			Number: proto.Int32(int32(i + 1)),
			Label:  label.Enum(),
			Type:   f.kind.Enum(),
		}
		if f.message != "" {
			field.TypeName = proto.String("." + protoPackage + "." + f.message)
		}
		out.Field = append(out.Field, field)
	}
	return out
}

func rpc(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + name + "Request"),
		OutputType: proto.String("." + protoPackage + "." + name + "Response"),
	}
}

// adminFileProto описывает storefront/v1/fulfillment_admin.proto. Номера полей
// идут по порядку объявления и не должны меняться.
func adminFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(ProtoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/vladislavdragonenkov/storefront/internal/service/grpc;grpcsvc"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("OrderItem", str("product_id"), str("name"), str("price"), i64("quantity")),
			message("TimelineEvent", str("type"), str("reason"), str("actor"), str("occurred")),
			message("Order",
				str("id"), str("user_id"), str("user_name"), str("status"), str("total_amount"),
				str("payment_method"), list("items", "OrderItem"), i64("version"),
				str("created_at"), str("updated_at"),
			),

			message("GetOrderRequest", str("order_id")),
			message("GetOrderResponse", msg("order", "Order"), list("timeline", "TimelineEvent")),

			message("ListOrdersRequest", str("user_id"), str("status"), i32("page"), i32("limit")),
			message("ListOrdersResponse", list("orders", "Order"), i32("total"), i32("page"), i32("total_pages")),

			message("SetOrderStatusRequest", str("order_id"), str("status"), str("actor"), str("reason")),
			message("SetOrderStatusResponse", msg("order", "Order")),

			message("DeleteOrderRequest", str("order_id"), str("actor")),
			message("DeleteOrderResponse", str("order_id")),

			message("ProductRatingRequest", str("product_id")),
			message("ProductRatingResponse", str("product_id"), float("average"), i32("count")),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("FulfillmentAdmin"),
			Method: []*descriptorpb.MethodDescriptorProto{
				rpc("GetOrder"), rpc("ListOrders"), rpc("SetOrderStatus"), rpc("DeleteOrder"), rpc("ProductRating"),
			},
		}},
	}
}

func registerAdminFile() protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(adminFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("build %s: %v", ProtoFile, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s: %v", ProtoFile, err))
	}
	return fd
}

// methodDescriptor возвращает описание RPC по полному имени вида
// /storefront.v1.FulfillmentAdmin/GetOrder.
func methodDescriptor(fullMethod string) protoreflect.MethodDescriptor {
	name := strings.TrimPrefix(fullMethod, "/"+ServiceName+"/")
	md := adminFile.Services().ByName("FulfillmentAdmin").Methods().ByName(protoreflect.Name(name))
	if md == nil {
		panic("unknown FulfillmentAdmin method " + fullMethod)
	}
	return md
}
