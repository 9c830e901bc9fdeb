package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agrivia/accounts/internal/model"
)

// GenerateSpec builds the OpenAPI 3.1 document for the JSON API. The admin
// web console is HTML and is not described.
func GenerateSpec(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Agrivia Accounts API",
			Description: "Login, account self-service and admin account management.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = schemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/api/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Exchange email and password for a bearer token",
			Description: "Unknown email and wrong password both yield 401. Accounts that are not active yield 403.",
			OperationID: "login",
			RequestBody: jsonBody("LoginRequest"),
			Responses: responses("200", "Logged in", ref("LoginResponse"),
				"400", "401", "403", "429"),
		},
	})

	doc.Paths.Set("/api/me", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Return the authenticated account",
			OperationID: "me",
			Security:    bearer,
			Responses:   responses("200", "The caller's account", ref("Account"), "401"),
		},
	})

	doc.Paths.Set("/api/admin/users", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List all accounts with due-date classification",
			OperationID: "listAccounts",
			Security:    bearer,
			Responses:   responses("200", "All accounts", listOf("AccountView"), "401", "403"),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Create an account",
			OperationID: "createAccount",
			Security:    bearer,
			RequestBody: jsonBody("CreateAccountRequest"),
			Responses:   responses("201", "Created", ref("Account"), "400", "401", "403", "409"),
		},
	})

	idParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").
		WithSchema(openapi3.NewInt64Schema()).
		WithDescription("Account ID")}

	adminPut := func(id, summary, body string) *openapi3.PathItem {
		return &openapi3.PathItem{
			Parameters: openapi3.Parameters{idParam},
			Put: &openapi3.Operation{
				Tags:        []string{"admin"},
				Summary:     summary,
				OperationID: id,
				Security:    bearer,
				RequestBody: jsonBody(body),
				Responses:   responses("200", "Updated account", ref("Account"), "400", "401", "403", "404"),
			},
		}
	}
	doc.Paths.Set("/api/admin/users/{id}/status", adminPut("setAccountStatus", "Change an account's status", "StatusRequest"))
	doc.Paths.Set("/api/admin/users/{id}/password", adminPut("resetAccountPassword", "Reset an account's password", "PasswordRequest"))
	doc.Paths.Set("/api/admin/users/{id}/due-date", adminPut("setAccountDueDate", "Set or clear the payment due date", "DueDateRequest"))

	return doc
}

func schemas() openapi3.Schemas {
	str := func() *openapi3.Schema { return openapi3.NewStringSchema() }
	status := openapi3.NewStringSchema().WithEnum(enumValues(model.AllStatuses.Strings())...)
	date := openapi3.NewStringSchema().WithFormat("date")

	account := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("name", str()).
		WithProperty("email", openapi3.NewStringSchema().WithFormat("email")).
		WithPropertyRef("status", ref("Status")).
		WithProperty("is_admin", openapi3.NewBoolSchema()).
		WithProperty("payment_due_date", openapi3.NewDateTimeSchema().WithNullable()).
		WithProperty("created_at", openapi3.NewDateTimeSchema()).
		WithProperty("updated_at", openapi3.NewDateTimeSchema().WithNullable())

	view := openapi3.NewObjectSchema()
	view.AllOf = openapi3.SchemaRefs{
		ref("Account"),
		openapi3.NewObjectSchema().
			WithProperty("due_date_status", openapi3.NewStringSchema().
				WithEnum("overdue", "warning", "ok")).NewRef(),
	}

	errorDetail := openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewInt32Schema()).
		WithProperty("message", str())

	return openapi3.Schemas{
		"Status":      status.NewRef(),
		"Account":     account.NewRef(),
		"AccountView": view.NewRef(),
		"LoginRequest": openapi3.NewObjectSchema().
			WithProperty("email", str()).
			WithProperty("senha", openapi3.NewStringSchema().WithFormat("password")).
			WithRequired([]string{"email", "senha"}).NewRef(),
		"LoginResponse": openapi3.NewObjectSchema().
			WithProperty("success", openapi3.NewBoolSchema()).
			WithProperty("token", str()).
			WithPropertyRef("status", ref("Status")).NewRef(),
		"CreateAccountRequest": openapi3.NewObjectSchema().
			WithProperty("name", str()).
			WithProperty("email", str()).
			WithProperty("password", openapi3.NewStringSchema().WithFormat("password")).
			WithPropertyRef("status", ref("Status")).
			WithProperty("is_admin", openapi3.NewBoolSchema()).
			WithProperty("payment_due_date", date).
			WithRequired([]string{"name", "email", "password"}).NewRef(),
		"StatusRequest": openapi3.NewObjectSchema().
			WithPropertyRef("status", ref("Status")).
			WithRequired([]string{"status"}).NewRef(),
		"PasswordRequest": openapi3.NewObjectSchema().
			WithProperty("password", openapi3.NewStringSchema().WithFormat("password")).
			WithRequired([]string{"password"}).NewRef(),
		"DueDateRequest": openapi3.NewObjectSchema().
			WithProperty("due_date", openapi3.NewStringSchema().WithFormat("date").WithNullable()).NewRef(),
		"ErrorResponse": openapi3.NewObjectSchema().
			WithProperty("error", errorDetail).NewRef(),
	}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func listOf(name string) *openapi3.SchemaRef {
	items := openapi3.NewArraySchema()
	items.Items = ref(name)
	return openapi3.NewObjectSchema().
		WithPropertyRef("resource", items.NewRef()).
		WithProperty("meta", openapi3.NewObjectSchema().WithProperty("count", openapi3.NewInt64Schema())).
		NewRef()
}

func jsonBody(schema string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(ref(schema)),
	}
}

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Unauthorized",
	"403": "Forbidden",
	"404": "Not found",
	"409": "Conflict",
	"429": "Too many requests",
}

// responses builds a success response plus the listed error responses and a
// 500, all error bodies using the shared envelope.
func responses(code, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	out := openapi3.NewResponses()
	out.Set(code, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	})

	errorRef := ref("ErrorResponse")
	for _, c := range append(errorCodes, "500") {
		desc, ok := errorDescriptions[c]
		if !ok {
			desc = "Internal server error"
		}
		out.Set(c, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(desc).
				WithContent(openapi3.NewContentWithJSONSchemaRef(errorRef)),
		})
	}
	return out
}

func enumValues(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
