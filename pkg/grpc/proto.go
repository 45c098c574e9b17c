package grpc

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Method names of KodyPayTerminalService as declared in pay.proto.
const (
	MethodTerminals      = "Terminals"
	MethodPay            = "Pay"
	MethodCancel         = "Cancel"
	MethodPaymentDetails = "PaymentDetails"
)

// PayProtoEmbedded contains the text of pay.proto, the terminal service
// definition compiled at runtime.
//
//go:embed pay.proto
var PayProtoEmbedded string

// payProtoFile is the name under which PayProtoEmbedded is compiled.
const payProtoFile = "kody/pay/v1/pay.proto"

// PayDescriptors returns the compiled descriptors of pay.proto. The result is
// computed once and shared.
var PayDescriptors = sync.OnceValues(func() (linker.Files, error) {
	return getProtoDescriptors(map[string]string{payProtoFile: PayProtoEmbedded})
})

// FindMethod searches the given compiled proto files for a method with the
// provided simple method name (as declared in the .proto). It iterates over all
// services in all files and returns the file descriptor and method descriptor
// for the first match.
func FindMethod(files linker.Files, methodName string) (protoreflect.FileDescriptor, protoreflect.MethodDescriptor, error) {
	for _, file := range files {
		for i := 0; i < file.Services().Len(); i++ {
			service := file.Services().Get(i)
			method := service.Methods().ByName(protoreflect.Name(methodName))
			if method != nil {
				return file, method, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("method %s not found in provided proto files", methodName)
}

// FullMethodName builds the "/<package>.<Service>/<Method>" path used on the wire.
func FullMethodName(md protoreflect.MethodDescriptor) string {
	return "/" + string(md.Parent().FullName()) + "/" + string(md.Name())
}

// getProtoDescriptors compiles the provided proto sources (filename → content)
// into linker.Files using protocompile with the standard well-known imports.
func getProtoDescriptors(protoFiles map[string]string) (linker.Files, error) {
	accessor := protocompile.SourceAccessorFromMap(protoFiles)
	r := protocompile.WithStandardImports(&protocompile.SourceResolver{Accessor: accessor})
	compiler := protocompile.Compiler{
		Resolver:       r,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}
	names := make([]string, 0, len(protoFiles))
	for name := range protoFiles {
		names = append(names, name)
	}
	slices.Sort(names)
	fds, err := compiler.Compile(context.Background(), names...)
	if err != nil || fds == nil {
		zap.L().Error("failed to compile proto files", zap.Error(err))
		return nil, fmt.Errorf("failed to compile proto files: %v", err)
	}
	return fds, nil
}
