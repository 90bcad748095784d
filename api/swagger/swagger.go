package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Achievement Verification API",
        "description": "Submission scoring, faculty approval and the signed decision ledger",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Submissions", "description": "Student achievement claims and evidence"},
        {"name": "Review", "description": "Faculty review queue and decisions"},
        {"name": "Audit", "description": "Verified decision history and ledger checks"}
    ],
    "paths": {
        "/evidence": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Upload an evidence file",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Empty, oversized or disallowed file", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Submit an achievement for verification",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitAchievementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate activity", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "424": {"description": "Evidence unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Get a submission with its verification signal",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Submissions"],
                "summary": "Withdraw a pending submission",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Withdrawn", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Withdrawal not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review-queue": {
            "get": {
                "tags": ["Review"],
                "summary": "List submissions awaiting review",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "institutionId", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/review": {
            "post": {
                "tags": ["Review"],
                "summary": "Start reviewing a submission",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Under review", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/decision": {
            "post": {
                "tags": ["Review"],
                "summary": "Approve or reject a submission",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Decision recorded and linked to the ledger", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Policy conflict, pending verification or already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Missing or out of range marks, missing feedback", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Ledger contention, retry later", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}/rescore": {
            "post": {
                "tags": ["Review"],
                "summary": "Recompute the verification signal of an open submission",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-trail": {
            "get": {
                "tags": ["Audit"],
                "summary": "Read the verified decision history of a student or institution",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "institutionId", "in": "query", "type": "string"},
                    {"name": "decision", "in": "query", "type": "string", "enum": ["approved", "rejected"]},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Students may only read their own trail", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-trail/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export the verified audit trail",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "institutionId", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/ledger/verify": {
            "get": {
                "tags": ["Audit"],
                "summary": "Verify the whole decision ledger",
                "responses": {
                    "200": {"description": "Chain report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubmitAchievementRequest": {
            "type": "object",
            "required": ["category", "title", "description", "type", "activity_date", "max_marks"],
            "properties": {
                "category": {"type": "string", "enum": ["conferences", "certifications", "club_activities", "internships", "community_service", "competitions"]},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "type": {"type": "string"},
                "activity_date": {"type": "string", "format": "date-time"},
                "duration": {"type": "string"},
                "location": {"type": "string"},
                "organization": {"type": "string"},
                "participants": {"type": "integer"},
                "rank": {"type": "string"},
                "skills": {"type": "array", "items": {"type": "string"}},
                "files": {"type": "array", "items": {"type": "string"}},
                "max_marks": {"type": "integer"},
                "suggested_points": {"type": "integer"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["approved", "rejected"]},
                "marks": {"type": "integer"},
                "feedback": {"type": "string"},
                "override": {"type": "boolean"},
                "override_reason": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "class": {"type": "string"}
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
