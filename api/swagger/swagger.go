package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Citizen Safety API",
        "description": "Incident reporting and triage for citizens and administrators",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Issues", "description": "Incident submission, listing and triage"},
        {"name": "Authentication", "description": "Accounts, profiles and verification codes"},
        {"name": "Notifications", "description": "Device registrations for status updates"},
        {"name": "System", "description": "Probes"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/issues": {
            "get": {
                "tags": ["Issues"],
                "summary": "List issues",
                "parameters": [
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["open", "in_progress", "resolved"]},
                    {"name": "priority", "in": "query", "type": "string", "enum": ["low", "medium", "high", "critical"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "user_id", "in": "query", "type": "integer"},
                    {"name": "start_date", "in": "query", "type": "string"},
                    {"name": "end_date", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["newest", "oldest", "title", "status"]},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Issues"],
                "summary": "Submit issue",
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateIssueRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/issues/statistics": {
            "get": {
                "tags": ["Issues"],
                "summary": "Issue statistics",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/issues/export.csv": {
            "get": {
                "tags": ["Issues"],
                "summary": "Export issues as CSV",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv"],
                "responses": {"200": {"description": "CSV file"}, "403": {"description": "Forbidden"}}
            }
        },
        "/issues/export.pdf": {
            "get": {
                "tags": ["Issues"],
                "summary": "Export issues as PDF",
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf"],
                "responses": {"200": {"description": "PDF file"}, "403": {"description": "Forbidden"}}
            }
        },
        "/issues/{id}": {
            "get": {
                "tags": ["Issues"],
                "summary": "Get issue",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Issues"],
                "summary": "Update issue",
                "description": "Owner fields and admin fields cannot be mixed in one request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PatchIssueRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/issues/{id}/image/{index}": {
            "get": {
                "tags": ["Issues"],
                "summary": "Get issue image",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {"200": {"description": "Image bytes"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register account",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/profile": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Authentication"],
                "summary": "Update profile",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProfileRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/auth/otp/request": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Request verification code",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OTPRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/auth/otp/verify": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Verify code",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyOTPRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/auth/account": {
            "delete": {
                "tags": ["Authentication"],
                "summary": "Delete account",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/push-tokens": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Register push token",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterPushTokenRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Notifications"],
                "summary": "Remove push token",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RemovePushTokenRequest"}}],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "CreateIssueRequest": {
            "type": "object",
            "required": ["title", "description", "category", "location_lat", "location_lng"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "location_lat": {"type": "number"},
                "location_lng": {"type": "number"},
                "images": {"type": "array", "items": {"type": "string"}},
                "contact_name": {"type": "string"},
                "contact_phone": {"type": "string"}
            }
        },
        "PatchIssueRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "images": {"type": "array", "items": {"type": "string"}},
                "contact_name": {"type": "string"},
                "contact_phone": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "in_progress", "resolved"]},
                "notes": {"type": "string"},
                "priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]}
            }
        },
        "SignupRequest": {
            "type": "object",
            "required": ["email", "password", "name"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "name": {"type": "string"},
                "phone": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "phone": {"type": "string"}
            }
        },
        "OTPRequest": {
            "type": "object",
            "required": ["channel"],
            "properties": {"channel": {"type": "string", "enum": ["email", "phone"]}}
        },
        "VerifyOTPRequest": {
            "type": "object",
            "required": ["channel", "code"],
            "properties": {
                "channel": {"type": "string", "enum": ["email", "phone"]},
                "code": {"type": "string"}
            }
        },
        "RegisterPushTokenRequest": {
            "type": "object",
            "required": ["token", "platform"],
            "properties": {
                "token": {"type": "string"},
                "platform": {"type": "string", "enum": ["ios", "android", "web"]}
            }
        },
        "RemovePushTokenRequest": {
            "type": "object",
            "required": ["token"],
            "properties": {"token": {"type": "string"}}
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
