/*
Package storagemodels defines the data structures used throughout the key/value store.

Key Types:

AttributeValue:
A closed tagged union over the four supported attribute kinds:

	&AttributeValueMemberS{Value: "alice"}   // String
	&AttributeValueMemberI{Value: 42}        // Integer (int64)
	&AttributeValueMemberF{Value: 42.5}      // Float (float64)
	&AttributeValueMemberB{Value: true}      // Boolean

Use a type switch to access the payload; TypeOf returns the AttributeType tag.

Coercion:
Raw string input is converted by ParseAttributeValue, trying boolean, then
integer, then float and finally falling back to the verbatim string:

	ParseAttributeValue("42")    // Integer 42
	ParseAttributeValue("42.5")  // Float 42.5
	ParseAttributeValue("true")  // Boolean true
	ParseAttributeValue("42abc") // String "42abc"

Rendering:
FormatAttributeValue produces the canonical text used by equality search;
FormatNumber produces the persisted number text, which always distinguishes
integers from floats.

These types provide a consistent representation across the in-memory store,
the JSON persistence codec and the DynamoDB snapshot backend.
*/
package storagemodels
