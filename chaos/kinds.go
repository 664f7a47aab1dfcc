package chaos

import (
	"fmt"
	"strings"

	"github.com/field-workshops/labkit/http"
)

// RequestKind enumerates the GraphQL operations the chaos API client knows.
type RequestKind int

const (
	UnknownKind RequestKind = iota
	RegisterInfra
	AddProbe
	ListInfra
	GetInfraManifest
)

// Param is the single typed variable of a query.
type Param struct {
	Key  string
	Type string
}

// QueryShape is the fixed description a query string is composed from.
type QueryShape struct {
	Operation string
	Name      string
	Param     Param
	// Return is the selection set, empty for scalar results
	Return string
}

var kindTags = map[RequestKind]string{
	RegisterInfra:    "register_infra",
	AddProbe:         "add_probe",
	ListInfra:        "list_infra",
	GetInfraManifest: "get_infra_manifest",
}

var shapes = map[RequestKind]QueryShape{
	RegisterInfra: {
		Operation: "mutation",
		Name:      "registerInfra",
		Param:     Param{Key: "request", Type: "RegisterInfraRequest!"},
		Return:    "{ manifest }",
	},
	AddProbe: {
		Operation: "mutation",
		Name:      "addProbe",
		Param:     Param{Key: "request", Type: "ProbeRequest!"},
		Return:    "{ name type }",
	},
	ListInfra: {
		Operation: "query",
		Name:      "listInfrasV2",
		Param:     Param{Key: "request", Type: "ListInfraRequest"},
		Return:    "{ totalNoOfInfras infras {infraID name environmentID platformName infraNamespace serviceAccount infraScope installationType} }",
	},
	GetInfraManifest: {
		Operation: "query",
		Name:      "getInfraManifest",
		Param:     Param{Key: "infraID", Type: "String!"},
	},
}

func (k RequestKind) String() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return "unknown"
}

// Shape returns the query shape of k.
func (k RequestKind) Shape() (QueryShape, error) {
	shape, ok := shapes[k]
	if !ok {
		return QueryShape{}, http.NewValidationError(fmt.Sprintf("unsupported request kind %d", int(k)), "kind")
	}
	return shape, nil
}

// Mutation reports whether k changes server state.
func (k RequestKind) Mutation() bool {
	return shapes[k].Operation == "mutation"
}

// ParseRequestKind maps a request tag such as "register_infra" to its kind.
func ParseRequestKind(tag string) (RequestKind, error) {
	for kind, t := range kindTags {
		if t == tag {
			return kind, nil
		}
	}
	return UnknownKind, http.NewValidationError(fmt.Sprintf("unsupported request type %q", tag), "kind")
}

// BuildQuery composes the query string of kind. Every query also takes the
// $identifiers block scoping it to an account, org and project.
func BuildQuery(kind RequestKind) (string, error) {
	shape, err := kind.Shape()
	if err != nil {
		return "", err
	}
	field := fmt.Sprintf("%s(%s: $%s, identifiers: $identifiers) %s",
		shape.Name, shape.Param.Key, shape.Param.Key, shape.Return)
	return fmt.Sprintf("%s %s($%s: %s, $identifiers: IdentifiersRequest!) { %s }",
		shape.Operation, shape.Name, shape.Param.Key, shape.Param.Type, strings.TrimSpace(field)), nil
}
