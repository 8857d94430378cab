/*
Package registry manages attribute type registration for the key/value store.

Every store carries its own TypeRegistry. The first write of an attribute name
fixes its type for that store; later writes of the same name must use the same
type:

	reg := registry.NewTypeRegistry()
	reg.ValidateAndRegisterType("age", storagemodels.TypeInteger) // registers
	reg.ValidateAndRegisterType("age", storagemodels.TypeInteger) // no-op
	reg.ValidateAndRegisterType("age", storagemodels.TypeString)  // TypeMismatchError

Registries of different stores are independent, so "age" may be an integer in
one store and a string in another. Clear resets the registry when its store is
wiped.

The registry is thread-safe.
*/
package registry
