package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Halaqat Progress API",
        "description": "Progress and stage-progression engine for the Halaqat tuition platform",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Evaluations", "description": "Teacher evaluation submission"},
        {"name": "Students", "description": "Student position, ledger, and assignment"},
        {"name": "Timetable", "description": "Ledger projection for the teacher roster"},
        {"name": "Certificates", "description": "Certificate eligibility and review workflow"},
        {"name": "Stages", "description": "Curriculum catalog"}
    ],
    "paths": {
        "/evaluations": {
            "post": {
                "tags": ["Evaluations"],
                "summary": "Submit a teacher evaluation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitEvaluationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Teacher not assigned to student"},
                    "409": {"description": "Stale page or concurrency conflict"},
                    "422": {"description": "Unknown grade value"}
                }
            }
        },
        "/students": {
            "post": {
                "tags": ["Students"],
                "summary": "Register a student at the first curriculum stage",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/teacher": {
            "put": {
                "tags": ["Students"],
                "summary": "Assign or replace the student's teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignTeacherRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/position": {
            "get": {
                "tags": ["Students"],
                "summary": "Read the student's current position",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/position/rebuild": {
            "post": {
                "tags": ["Students"],
                "summary": "Rebuild the position cache by replaying the ledger",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/ledger": {
            "get": {
                "tags": ["Students"],
                "summary": "Read the student's evaluation history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Project the teacher's timetable grid",
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/export": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Export the timetable grid as CSV or PDF",
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/certificates": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue a certificate request for a completed stage",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCertificateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Stage is not complete"}
                }
            },
            "get": {
                "tags": ["Certificates"],
                "summary": "List certificate requests",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{id}": {
            "patch": {
                "tags": ["Certificates"],
                "summary": "Approve or reject a pending certificate request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewCertificateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request already decided"}
                }
            }
        },
        "/stages": {
            "get": {
                "tags": ["Stages"],
                "summary": "List curriculum stages in order",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubmitEvaluationRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "source": {"type": "string", "enum": ["SUBMISSION", "VOICE", "DIRECT_RATING"]},
                "grade_label": {"type": "string"},
                "grade_score": {"type": "integer"},
                "page_number_claimed": {"type": "integer"},
                "occurred_on": {"type": "string"}
            },
            "required": ["student_id", "source", "page_number_claimed", "occurred_on"]
        },
        "RegisterStudentRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "teacher_id": {"type": "string"}
            },
            "required": ["full_name"]
        },
        "AssignTeacherRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {"type": "string"}
            },
            "required": ["teacher_id"]
        },
        "CreateCertificateRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "stage_id": {"type": "string"}
            },
            "required": ["student_id", "stage_id"]
        },
        "ReviewCertificateRequest": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"}
            },
            "required": ["approve"]
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
