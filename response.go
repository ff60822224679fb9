package chanrpc

import (
	"fmt"

	"github.com/chanrpc/chanrpc/rpcerr"
	"github.com/chanrpc/chanrpc/wire"
)

// bindException marshals err into base's error fields: a
// SchemaError becomes a structured (CRC32-keyed) error, anything else
// becomes a formatted freeform diagnostic naming the method and service
// that failed.
func bindException(base *wire.BasePacket, err error, method *Method, service *ServiceDescriptor) {
	if se, ok := rpcerr.AsSchemaError(err); ok {
		if bindErr := rpcerr.BindStructured(base, se); bindErr == nil {
			return
		}
		// fall through to freeform on marshal failure
	}
	methodName, serviceName := fullName(method, service)
	rpcerr.BindFreeform(base, fmt.Sprintf("Method [%s.%s] failed with: %v", serviceName, methodName, err))
}
