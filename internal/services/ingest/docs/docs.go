// Package docs registers the OpenAPI description of the job API with swag.
// Keep it in step with the annotations in ingest/http
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "openapi": "3.1.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "paths": {
        "/v1/jobs": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Start a job for one object",
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/SubmitInput"}}}
                },
                "responses": {
                    "202": {"description": "Accepted", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Submitted"}}}}
                }
            }
        },
        "/v1/events": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Start a job from a raw S3 notification",
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"type": "object"}}}
                },
                "responses": {
                    "202": {"description": "Accepted", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Submitted"}}}}
                }
            }
        },
        "/v1/jobs/{id}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Job progress from the run ledger",
                "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
                "responses": {
                    "200": {"description": "OK", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/JobProgress"}}}}
                }
            }
        },
        "/v1/jobs/{id}/runs": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Every invocation of a job, in resume order",
                "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
                "responses": {
                    "200": {"description": "OK", "content": {"application/json": {"schema": {"type": "array", "items": {"$ref": "#/components/schemas/RunRecord"}}}}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["Meta"],
                "summary": "Liveness and dependency check",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "components": {
        "schemas": {
            "SubmitInput": {
                "type": "object",
                "required": ["bucket", "key"],
                "properties": {
                    "bucket": {"type": "string", "example": "incoming"},
                    "key": {"type": "string", "example": "orats/2024-01-02.csv"},
                    "job_id": {"type": "string"}
                }
            },
            "Submitted": {
                "type": "object",
                "properties": {"job_id": {"type": "string"}}
            },
            "JobProgress": {
                "type": "object",
                "properties": {
                    "job_id": {"type": "string"},
                    "bucket": {"type": "string"},
                    "key": {"type": "string"},
                    "status": {"type": "string", "example": "CONTINUING"},
                    "offset": {"type": "integer", "format": "int64"},
                    "row_count": {"type": "integer", "format": "int64"},
                    "skipped_rows": {"type": "integer", "format": "int64"},
                    "total_size": {"type": "integer", "format": "int64"},
                    "runs": {"type": "integer"},
                    "error": {"type": "string"},
                    "started_at": {"type": "string", "format": "date-time"},
                    "updated_at": {"type": "string", "format": "date-time"}
                }
            },
            "RunRecord": {
                "type": "object",
                "properties": {
                    "invocation_id": {"type": "string"},
                    "status": {"type": "string", "example": "COMPLETED"},
                    "start_offset": {"type": "integer", "format": "int64"},
                    "end_offset": {"type": "integer", "format": "int64"},
                    "row_count": {"type": "integer", "format": "int64"},
                    "rows_this_run": {"type": "integer", "format": "int64"},
                    "skipped_rows": {"type": "integer", "format": "int64"},
                    "elapsed_ms": {"type": "integer", "format": "int64"},
                    "error": {"type": "string"},
                    "started_at": {"type": "string", "format": "date-time"},
                    "finished_at": {"type": "string", "format": "date-time"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "rangeload",
	Description:      "Resumable CSV ingest from S3 byte ranges",
	InfoInstanceName: "ingest",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
