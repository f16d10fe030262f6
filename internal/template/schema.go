package template

// templateSchemaJSON is the JSON Schema for WorkflowTemplate validation.
// Embedded as a constant to avoid filesystem dependencies.
const templateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://canvasgraph.dev/schemas/template.json",
  "type": "object",
  "required": ["name", "nodes"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "guided_steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/guided_step" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["type", "position"],
      "properties": {
        "id": { "type": "string" },
        "type": { "type": "string", "minLength": 1 },
        "category": { "type": "string" },
        "position": { "$ref": "#/$defs/position" },
        "display_mode": {
          "type": "string",
          "enum": ["compact", "standard", "expanded"]
        },
        "inputs": {
          "type": "array",
          "items": { "$ref": "#/$defs/port" }
        },
        "outputs": {
          "type": "array",
          "items": { "$ref": "#/$defs/port" }
        },
        "parameters": { "type": "object" }
      },
      "additionalProperties": false
    },
    "position": {
      "type": "object",
      "required": ["x", "y"],
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" }
      },
      "additionalProperties": false
    },
    "port": {
      "type": "object",
      "required": ["id", "name", "type", "direction"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "required": { "type": "boolean" },
        "direction": {
          "type": "string",
          "enum": ["input", "output"]
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source_node", "source_port", "target_node", "target_port"],
      "properties": {
        "source_node": { "type": "string", "minLength": 1 },
        "source_port": { "type": "string", "minLength": 1 },
        "target_node": { "type": "string", "minLength": 1 },
        "target_port": { "type": "string", "minLength": 1 },
        "selector": { "type": "string" }
      },
      "additionalProperties": false
    },
    "guided_step": {
      "type": "object",
      "required": ["id", "title"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "title": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "target_node": { "type": "string" },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`
